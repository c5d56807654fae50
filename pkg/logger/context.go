package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/runelight-network/runelight/pkg/logger/slogx"
)

type loggerKey struct{}

// FromContext returns the logger from the context, or the top-level logger if
// none is attached.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logger.With()
	}

	if log, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return log
	}

	return logger.With()
}

// NewContext returns a new context with logger attached.
func NewContext(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, loggerKey{}, log)
}

// WithContext returns a new context with given logger attributes.
func WithContext(ctx context.Context, args ...any) context.Context {
	return NewContext(ctx, FromContext(ctx).With(args...))
}

// DebugContext logs at [slog.LevelDebug] from logger in the given context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Log(ctx, slog.LevelDebug, msg, args...)
}

// InfoContext logs at [slog.LevelInfo] from logger in the given context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Log(ctx, slog.LevelInfo, msg, args...)
}

// WarnContext logs at [slog.LevelWarn] from logger in the given context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Log(ctx, slog.LevelWarn, msg, args...)
}

// ErrorContext logs at [slog.LevelError] from logger in the given context.
func ErrorContext(ctx context.Context, msg string, err error, args ...any) {
	FromContext(ctx).Log(ctx, slog.LevelError, msg, append(args, slogx.Error(err))...)
}

// PanicContext logs at [slog.LevelError] and then panics.
func PanicContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Log(ctx, slog.LevelError, msg, args...)
	panic(msg)
}

// FatalContext logs at [slog.LevelError] and then [os.Exit](1).
func FatalContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Log(ctx, slog.LevelError, msg, args...)
	os.Exit(1)
}
