package imagestack

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with imagestack-specific helpers.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithFile adds a filename field to the logger.
func (l *Logger) WithFile(filename string) *Logger {
	return &Logger{
		Logger: l.Logger.With("filename", filename),
	}
}

// LogOpen logs the construction of a stack.
func (l *Logger) LogOpen(mode Mode, length int, hasMetadata bool, err error) {
	if err != nil {
		l.Error("open failed",
			"mode", mode.String(),
			"error", err,
		)
	} else {
		l.Info("stack opened",
			"mode", mode.String(),
			"length", length,
			"metadata", hasMetadata,
		)
	}
}

// LogAppend logs an append operation.
func (l *Logger) LogAppend(index int, withMetadata bool, err error) {
	if err != nil {
		l.Error("append failed",
			"index", index,
			"error", err,
		)
	} else {
		l.Debug("append completed",
			"index", index,
			"metadata", withMetadata,
		)
	}
}

// LogFlush logs a flush operation.
func (l *Logger) LogFlush(length int, err error) {
	if err != nil {
		l.Error("flush failed",
			"length", length,
			"error", err,
		)
	} else {
		l.Debug("flush completed",
			"length", length,
		)
	}
}

// LogClose logs the teardown of a stack.
func (l *Logger) LogClose(length int, err error) {
	if err != nil {
		l.Error("close failed",
			"length", length,
			"error", err,
		)
	} else {
		l.Info("stack closed",
			"length", length,
		)
	}
}

// LogMisalignment logs an append that leaves images and metadata rows
// out of step.
func (l *Logger) LogMisalignment(index int, reason Misalignment) {
	l.Warn("metadata misaligned with images",
		"index", index,
		"reason", string(reason),
	)
}
