// Package logging wraps log/slog with the small amount of ceremony the rest
// of the proxy shares: a process-wide global logger, level parsing from a
// string, and child-logger helpers.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Config controls how the logger is constructed.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

// Logger wraps slog.Logger with proxy-specific convenience methods.
type Logger struct {
	*slog.Logger
}

// New creates a logger from configuration.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewDefault creates a logger with sensible defaults (info level, text format).
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "text"})
}

// WithFields creates a new logger with additional fields attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Global logger instance, set once at startup via SetGlobal.
var global = NewDefault()

// SetGlobal sets the process-wide logger.
func SetGlobal(logger *Logger) {
	global = logger
	slog.SetDefault(logger.Logger)
}

// Global returns the process-wide logger.
func Global() *Logger {
	return global
}

// Info logs at info level on the global logger.
func Info(msg string, args ...any) { global.Info(msg, args...) }

// Warn logs at warn level on the global logger.
func Warn(msg string, args ...any) { global.Warn(msg, args...) }

// Error logs at error level on the global logger.
func Error(msg string, args ...any) { global.Error(msg, args...) }

// Debug logs at debug level on the global logger.
func Debug(msg string, args ...any) { global.Debug(msg, args...) }

// InfoContext logs at info level with a context on the global logger.
func InfoContext(ctx context.Context, msg string, args ...any) {
	global.InfoContext(ctx, msg, args...)
}

// WarnContext logs at warn level with a context on the global logger.
func WarnContext(ctx context.Context, msg string, args ...any) {
	global.WarnContext(ctx, msg, args...)
}
