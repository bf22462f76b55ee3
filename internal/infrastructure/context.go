package infrastructure

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// EnsureTraceID returns ctx unchanged when it already carries a correlation
// id, otherwise a child context with a fresh UUID.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, uuid.NewString())
}

// LoggerWithContext binds the correlation id of ctx to logger. Loggers built
// by NewLogger stamp it per record already and are returned as is.
func LoggerWithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = GetLogger()
	}
	traceID := GetTraceID(ctx)
	if traceID == "" {
		return logger
	}
	if _, ok := logger.Handler().(*traceHandler); ok {
		return logger
	}
	return logger.With(slog.String("trace_id", traceID))
}

// WithComponent tags logger with the emitting component
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = GetLogger()
	}
	return logger.With(slog.String("component", component))
}

// ForFirm scopes a request logger to one firm code
func ForFirm(ctx context.Context, logger *slog.Logger, code string) *slog.Logger {
	logger = LoggerWithContext(ctx, logger)
	if code == "" {
		return logger
	}
	return logger.With(slog.String("code", code))
}
