// Package log provides the structured logging interface used across synthreg.
//
// The interface is deliberately small and slog-shaped so the training loop,
// the pipeline and the CLI can log with key/value pairs without depending on
// a concrete backend. The production implementation is backed by zerolog
// (see zerolog.go); TestLogger captures output for assertions.
//
// Example usage:
//
//	logger := log.GetLogger().With(log.ModelNameKey, "Sequential")
//	logger.Info("Training started",
//	    log.OperationKey, "fit",
//	    log.SamplesKey, 72,
//	    log.BatchSizeKey, 5,
//	)
package log

import (
	"context"
)

// Logger defines the structured logging interface used across synthreg.
//
// fields are alternating key/value pairs. For Error, an error value passed as
// the first field is attached as the record's error (with its stack trace
// when it carries one).
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
