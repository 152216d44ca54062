package pagepool

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with pagepool-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithDevice adds the owning device name to the logger.
func (l *Logger) WithDevice(device string) *Logger {
	return &Logger{
		Logger: l.Logger.With("device", device),
	}
}

// WithOrder adds the pool's block order to the logger.
func (l *Logger) WithOrder(order uint) *Logger {
	return &Logger{
		Logger: l.Logger.With("order", order),
	}
}

// LogAlloc logs an allocation outcome.
func (l *Logger) LogAlloc(fromPool bool, err error) {
	if err != nil {
		l.Warn("allocation failed",
			"from_pool", fromPool,
			"error", err,
		)
	} else {
		l.Debug("allocation completed",
			"from_pool", fromPool,
		)
	}
}

// LogShrink logs a shrink pass.
func (l *Logger) LogShrink(background bool, requested, freed int) {
	l.Debug("shrink pass completed",
		"background", background,
		"requested", requested,
		"freed", freed,
	)
}

// LogClose logs pool teardown.
func (l *Logger) LogClose(drainedPages int) {
	l.Info("pool closed",
		"drained_pages", drainedPages,
	)
}
