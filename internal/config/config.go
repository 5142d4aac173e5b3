// Package config loads session settings from CASES_* environment variables and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "CASES"

	idSeparatorKey = "id.separator"
	idStyleKey     = "id.style"
	casePrefixKey  = "case.prefix"
	logLevelKey    = "log.level"
	runParallelKey = "run.parallel"

	DefaultIDSeparator = "-"
	DefaultIDStyle     = "explicit"
	DefaultCasePrefix  = "case"
	DefaultLogLevel    = slog.LevelInfo
	DefaultRunParallel = 1
)

// Values are the raw settings, before the caller validates them.
type Values struct {
	IDSeparator string
	IDStyle     string
	CasePrefix  string
	LogLevel    slog.Level
	RunParallel int
}

// Defaults returns the values used when nothing is configured.
func Defaults() Values {
	return Values{
		IDSeparator: DefaultIDSeparator,
		IDStyle:     DefaultIDStyle,
		CasePrefix:  DefaultCasePrefix,
		LogLevel:    DefaultLogLevel,
		RunParallel: DefaultRunParallel,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault(idSeparatorKey, DefaultIDSeparator)
	v.SetDefault(idStyleKey, DefaultIDStyle)
	v.SetDefault(casePrefixKey, DefaultCasePrefix)
	v.SetDefault(logLevelKey, DefaultLogLevel.String())
	v.SetDefault(runParallelKey, DefaultRunParallel)
	return v
}

// Load reads file, if not empty, then the environment. Environment variables win
// over the file; a missing file is not an error.
func Load(file string) (Values, error) {
	v := newViper()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Values{}, fmt.Errorf("reading settings %s: %w", file, err)
			}
		}
	}

	out := Values{
		IDSeparator: v.GetString(idSeparatorKey),
		IDStyle:     v.GetString(idStyleKey),
		CasePrefix:  v.GetString(casePrefixKey),
		LogLevel:    ParseLevel(v.GetString(logLevelKey), DefaultLogLevel),
		RunParallel: v.GetInt(runParallelKey),
	}
	if out.RunParallel < 1 {
		out.RunParallel = DefaultRunParallel
	}
	return out, nil
}

// ParseLevel accepts level names and numeric slog levels.
func ParseLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}
