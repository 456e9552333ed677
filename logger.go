package lsmgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with lsmgo-specific helpers so log sites use
// consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler falls
// back to a text handler on stderr at info level.
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
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})),
	}
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.Level(1000), // unreachable level
		})),
	}
}

// WithKey tags the logger with a record key.
func (l *Logger) WithKey(key any) *Logger {
	return &Logger{Logger: l.Logger.With("key", key)}
}

// LogPut logs a put operation.
func (l *Logger) LogPut(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "put failed", "error", err)
	} else {
		l.DebugContext(ctx, "put completed")
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed", "error", err)
	} else {
		l.DebugContext(ctx, "delete completed")
	}
}

// LogCheckpoint logs a checkpoint.
func (l *Logger) LogCheckpoint(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed", "error", err)
	} else {
		l.InfoContext(ctx, "checkpoint completed")
	}
}
