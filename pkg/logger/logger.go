// nolint: sloglint
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/runelight-network/runelight/common/errs"
)

// DefaultLevel is the default minimum reporting level for the logger.
const DefaultLevel = slog.LevelInfo

var (
	// minimum reporting level for the logger
	lvl = new(slog.LevelVar)

	// top-level logger
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
)

func init() {
	lvl.Set(DefaultLevel)
	slog.SetDefault(logger)
}

// Config is the logger configuration.
type Config struct {
	// Output is the logger output format. Possible values: "text" (default), "json".
	Output string `mapstructure:"output"`
	// Debug lowers the minimum reporting level to DEBUG.
	Debug bool `mapstructure:"debug"`
}

// Init reconfigures the top-level logger from config.
func Init(config Config) error {
	if config.Debug {
		lvl.Set(slog.LevelDebug)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(config.Output) {
	case "", "text":
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	case "json":
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	default:
		return errors.Wrapf(errs.Unsupported, "unsupported logger output %q", config.Output)
	}
	slog.SetDefault(logger)
	return nil
}

// SetLevel sets the minimum reporting level for the logger.
func SetLevel(level slog.Level) (old slog.Level) {
	old = lvl.Level()
	lvl.Set(level)
	return old
}

// With returns a Logger that includes the given attributes in each output operation.
func With(args ...any) *slog.Logger {
	return logger.With(args...)
}

// Debug logs at [slog.LevelDebug].
func Debug(msg string, args ...any) {
	logger.Log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info logs at [slog.LevelInfo].
func Info(msg string, args ...any) {
	logger.Log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn logs at [slog.LevelWarn].
func Warn(msg string, args ...any) {
	logger.Log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs at [slog.LevelError].
func Error(msg string, args ...any) {
	logger.Log(context.Background(), slog.LevelError, msg, args...)
}

// Panic logs at [slog.LevelError] and then panics.
func Panic(msg string, args ...any) {
	logger.Log(context.Background(), slog.LevelError, msg, args...)
	panic(msg)
}

// Fatal logs at [slog.LevelError] followed by a call to [os.Exit](1).
func Fatal(msg string, args ...any) {
	logger.Log(context.Background(), slog.LevelError, msg, args...)
	os.Exit(1)
}
