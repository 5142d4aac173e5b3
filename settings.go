package cases

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pumped-fn/pumped-cases/internal/config"
)

// Settings are the session-wide knobs of id generation, discovery and running.
type Settings struct {
	// IDSeparator joins the id fragments of an invocation.
	IDSeparator string
	// IDStyle renders union alternatives of declarations without an explicit style.
	IDStyle IDStyle
	// CasePrefix identifies case methods of a holder. Registries created with
	// Session.NewRegistry or WithRegistrySettings use it.
	CasePrefix string
	// LogLevel is the level of loggers built by NewLogger.
	LogLevel slog.Level
	// Parallel bounds RunAll when it is given no limit.
	Parallel int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return fromValues(config.Defaults(), IDStyleExplicit)
}

// LoadSettings reads CASES_* environment variables and, when file is not empty, a
// YAML file with the keys id.separator, id.style, case.prefix, log.level and
// run.parallel.
func LoadSettings(file string) (Settings, error) {
	values, err := config.Load(file)
	if err != nil {
		return Settings{}, err
	}
	style, err := ParseIDStyle(values.IDStyle)
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	if values.IDSeparator == "" {
		return Settings{}, fmt.Errorf("loading settings: empty id separator")
	}
	return fromValues(values, style), nil
}

func fromValues(values config.Values, style IDStyle) Settings {
	return Settings{
		IDSeparator: values.IDSeparator,
		IDStyle:     style,
		CasePrefix:  values.CasePrefix,
		LogLevel:    values.LogLevel,
		Parallel:    values.RunParallel,
	}
}

// NewLogger builds a text logger at the configured level.
func (s Settings) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: s.LogLevel}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
