package extensions

import (
	"context"
	"log/slog"
	"time"

	cases "github.com/pumped-fn/pumped-cases"
)

// LoggingExtension logs invocations and every body evaluation
type LoggingExtension struct {
	cases.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a new logging extension. A nil logger uses slog.Default.
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingExtension{
		BaseExtension: cases.NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *cases.Operation) (any, error) {
	start := time.Now()
	e.logger.DebugContext(ctx, "starting", "operation", op.Kind, "source", op.Source())
	result, err := next()

	duration := time.Since(start)
	if err != nil {
		e.logger.WarnContext(ctx, "failed", "operation", op.Kind, "source", op.Source(), "duration", duration, "error", err)
	} else {
		e.logger.DebugContext(ctx, "completed", "operation", op.Kind, "source", op.Source(), "duration", duration)
	}

	return result, err
}

func (e *LoggingExtension) OnInvocationStart(exec *cases.Execution) error {
	e.logger.Info("invocation started", "invocation", exec.Invocation().FullName(), "id", exec.ID().String())
	return nil
}

func (e *LoggingExtension) OnInvocationEnd(exec *cases.Execution, err error) error {
	status, _ := cases.Status().GetFromExecution(exec)
	attrs := []any{"invocation", exec.Invocation().FullName(), "status", status.String()}
	if notUsed := exec.Invocation().NotUsed(); len(notUsed) > 0 {
		names := make([]string, len(notUsed))
		for i, f := range notUsed {
			names[i] = f.Name()
		}
		attrs = append(attrs, "not_used", names)
	}
	if err != nil {
		e.logger.Error("invocation ended", append(attrs, "error", err)...)
		return nil
	}
	e.logger.Info("invocation ended", attrs...)
	return nil
}

func (e *LoggingExtension) OnCleanupError(err *cases.CleanupError) bool {
	e.logger.Error("teardown failed", "source", err.Source, "context", err.Context, "error", err.Err)
	return false
}
