package pagedb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with pagedb-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithMap adds a map name field to the logger.
func (l *Logger) WithMap(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("map", name),
	}
}

// LogBackup logs a backup operation.
func (l *Logger) LogBackup(ctx context.Context, target string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "backup completed",
			"target", target,
			"bytes", bytes,
		)
	}
}

// LogRestore logs a restore operation.
func (l *Logger) LogRestore(ctx context.Context, target string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "restore completed",
			"target", target,
		)
	}
}
