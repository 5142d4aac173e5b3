package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	cases "github.com/pumped-fn/pumped-cases"
)

// GraphDebugExtension logs the fixture graph of an invocation when a body fails.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Silent (for testing)
//	ext := extensions.NewGraphDebugExtension(extensions.NewSilentHandler())
//
// The extension logs at ERROR level for both resolution errors and panics.
type GraphDebugExtension struct {
	cases.BaseExtension

	mu       sync.Mutex
	resolved map[uuid.UUID]map[cases.AnyFixture]bool
	failed   map[uuid.UUID]map[cases.AnyFixture]error
	logger   *slog.Logger
}

// NewGraphDebugExtension creates a new graph debug extension.
// logHandler: slog.Handler for logging (use HumanHandler for formatted output, or any other slog.Handler)
func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: cases.NewBaseExtension("graph-debug"),
		resolved:      make(map[uuid.UUID]map[cases.AnyFixture]bool),
		failed:        make(map[uuid.UUID]map[cases.AnyFixture]error),
		logger:        slog.New(logHandler),
	}
}

// Wrap tracks fixture outcomes per execution
func (e *GraphDebugExtension) Wrap(ctx context.Context, next func() (any, error), op *cases.Operation) (any, error) {
	result, err := next()

	e.mu.Lock()
	defer e.mu.Unlock()
	id := op.Execution.ID()
	if err == nil {
		if e.resolved[id] == nil {
			e.resolved[id] = make(map[cases.AnyFixture]bool)
		}
		e.resolved[id][op.Fixture] = true
	} else {
		if e.failed[id] == nil {
			e.failed[id] = make(map[cases.AnyFixture]error)
		}
		e.failed[id][op.Fixture] = err
	}

	return result, err
}

// OnError logs the fixture graph when resolution fails
func (e *GraphDebugExtension) OnError(err error, op *cases.Operation, exec *cases.Execution) {
	graphOutput := e.formatDependencyGraph(exec, op.Fixture, err)

	e.logger.Error("Dependency Resolution Error",
		"fixture", op.Source(),
		"invocation", exec.Invocation().FullName(),
		"error", err.Error(),
		"operation", string(op.Kind),
		"dependency_graph", graphOutput,
	)
}

// OnPanic logs context when a body panics
func (e *GraphDebugExtension) OnPanic(exec *cases.Execution, op *cases.Operation, recovered any, stack []byte) error {
	e.logger.Error("Invocation Panic",
		"panic", fmt.Sprintf("%v", recovered),
		"fixture", op.Source(),
		"invocation", exec.Invocation().FullName(),
		"stack_trace", string(stack),
	)

	return nil // Don't suppress the error
}

// OnInvocationEnd forgets what was tracked for the execution
func (e *GraphDebugExtension) OnInvocationEnd(exec *cases.Execution, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.resolved, exec.ID())
	delete(e.failed, exec.ID())
	return nil
}

func (e *GraphDebugExtension) status(exec *cases.Execution, f cases.AnyFixture, failedFixture cases.AnyFixture) string {
	switch {
	case f == failedFixture:
		return " ❌ FAILED"
	case exec.Invocation().IsNotUsed(f):
		return " ⊘ NOT_USED"
	case e.resolved[exec.ID()][f]:
		return " ✓"
	}
	if err, failed := e.failed[exec.ID()][f]; failed {
		return fmt.Sprintf(" ❌ (error: %v)", err)
	}
	return " (pending)"
}

func (e *GraphDebugExtension) formatDependencyGraph(exec *cases.Execution, failedFixture cases.AnyFixture, failedErr error) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var sb strings.Builder
	closure := exec.Invocation().Plan().Closure()

	if len(closure) == 0 {
		sb.WriteString("\n(empty - the test uses no fixture)\n")
	} else {
		sb.WriteString("\n")
	}

	for _, f := range closure {
		deps := f.Deps()
		if len(deps) == 0 {
			sb.WriteString(fmt.Sprintf("  %s%s (no dependencies)\n", f.Name(), e.status(exec, f, failedFixture)))
			continue
		}

		sb.WriteString(fmt.Sprintf("  %s%s\n", f.Name(), e.status(exec, f, failedFixture)))

		for i, dep := range deps {
			line := dep.Name() + e.status(exec, dep, failedFixture)
			if i == len(deps)-1 {
				sb.WriteString(fmt.Sprintf("    └─> %s\n", line))
			} else {
				sb.WriteString(fmt.Sprintf("    ├─> %s\n", line))
			}
		}
	}

	if failedErr != nil {
		sb.WriteString("\nError Details:\n")
		name := "<none>"
		if failedFixture != nil {
			name = failedFixture.Name()
		}
		sb.WriteString(fmt.Sprintf("  Fixture: %s\n", name))
		sb.WriteString(fmt.Sprintf("  Error: %v\n", failedErr))
	}

	return sb.String()
}

// SilentHandler is a slog.Handler that discards all log output
// Useful for testing when you don't want log output
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h
}

// HumanHandler is a slog.Handler that formats logs for human readability
// with proper line breaks and visual formatting (especially for fixture graphs)
type HumanHandler struct {
	mu     sync.Mutex
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch record.Message {
	case "Dependency Resolution Error":
		return h.writeBlock("Dependency Resolution Error", record, []field{
			{"fixture", "\nFailed Fixture: %s\n"},
			{"invocation", "Invocation: %s\n"},
			{"error", "Error: %s\n"},
			{"operation", "Operation: %s\n"},
			{"dependency_graph", "\nFixture Graph:%s"},
		})
	case "Invocation Panic":
		return h.writeBlock("Invocation Panic", record, []field{
			{"panic", "\nPanic: %s\n"},
			{"fixture", "Fixture: %s\n"},
			{"invocation", "Invocation: %s\n"},
			{"stack_trace", "\nStack Trace:\n%s\n"},
		})
	}

	// Default formatting for other messages
	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

type field struct {
	key    string
	format string
}

func (h *HumanHandler) writeBlock(title string, record slog.Record, fields []field) error {
	values := make(map[string]string, len(fields))
	record.Attrs(func(a slog.Attr) bool {
		values[a.Key] = a.Value.String()
		return true
	})

	rule := strings.Repeat("=", 70)
	if _, err := fmt.Fprintf(h.writer, "\n%s\n[GraphDebug] %s\n%s\n", rule, title, rule); err != nil {
		return err
	}
	for _, f := range fields {
		v, ok := values[f.key]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(h.writer, f.format, v); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(h.writer, "%s\n\n", rule)
	return err
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// For simplicity, return self (could create new handler with attrs if needed)
	return h
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	// For simplicity, return self (could create new handler with group if needed)
	return h
}
