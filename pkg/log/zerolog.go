package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	synerr "github.com/synthreg/synthreg/pkg/errors"
)

// Config configures the zerolog backed logger.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string
	// Format is "console" for human readable output or "json".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	zl zerolog.Logger
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewZerologLogger(zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger())
)

func init() {
	zerolog.ErrorStackMarshaler = marshalStack
	zerolog.ErrorStackFieldName = StacktraceKey
}

// New builds a ZerologLogger from cfg.
func New(cfg Config) (*ZerologLogger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(cfg.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	case "json":
	default:
		return nil, synerr.NewValidationError("log.format", "must be 'console' or 'json'", cfg.Format)
	}

	zl := zerolog.New(out).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return NewZerologLogger(zl), nil
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zl: zl}
}

// ParseLevel converts a textual level into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, synerr.NewValidationError("log.level", "unknown log level", s)
	}
}

// SetLogger replaces the process wide logger and routes library warnings to it.
func SetLogger(l Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()

	synerr.SetZerologWarnFunc(func(w error) {
		l.Warn(w.Error(), ErrorTypeKey, errorType(w))
	})
}

// GetLogger returns the process wide logger.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debug implements Logger.Debug.
func (l *ZerologLogger) Debug(msg string, fields ...any) {
	l.emit(l.zl.Debug(), msg, fields)
}

// Info implements Logger.Info.
func (l *ZerologLogger) Info(msg string, fields ...any) {
	l.emit(l.zl.Info(), msg, fields)
}

// Warn implements Logger.Warn.
func (l *ZerologLogger) Warn(msg string, fields ...any) {
	l.emit(l.zl.Warn(), msg, fields)
}

// Error implements Logger.Error. A leading error field is attached with its
// stack trace and, for typed errors, their structured details.
func (l *ZerologLogger) Error(msg string, fields ...any) {
	e := l.zl.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Stack().Err(err).Str(ErrorTypeKey, errorType(err))
			var obj zerolog.LogObjectMarshaler
			if errors.As(err, &obj) {
				e = e.Object("error.detail", obj)
			}
			fields = fields[1:]
		}
	}
	l.emit(e, msg, fields)
}

// With implements Logger.With.
func (l *ZerologLogger) With(fields ...any) Logger {
	return &ZerologLogger{zl: l.zl.With().Fields(normalize(fields)).Logger()}
}

// Enabled implements Logger.Enabled.
func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	zlvl := toZerologLevel(level)
	return zlvl >= l.zl.GetLevel() && zlvl >= zerolog.GlobalLevel()
}

func (l *ZerologLogger) emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	e.Fields(normalize(fields)).Msg(msg)
}

// normalize drops a dangling key so zerolog never sees an odd-length list.
func normalize(fields []any) []any {
	if len(fields)%2 == 1 {
		return fields[:len(fields)-1]
	}
	return fields
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func errorType(err error) string {
	var (
		notFitted *synerr.NotFittedError
		dim       *synerr.DimensionError
		valid     *synerr.ValidationError
		numeric   *synerr.NumericalInstabilityError
		model     *synerr.ModelError
		converge  *synerr.ConvergenceWarning
		missing   *synerr.MissingMetricWarning
	)
	switch {
	case errors.As(err, &converge):
		return "ConvergenceWarning"
	case errors.As(err, &missing):
		return "MissingMetricWarning"
	case errors.As(err, &notFitted):
		return "NotFittedError"
	case errors.As(err, &dim):
		return "DimensionError"
	case errors.As(err, &valid):
		return "ValidationError"
	case errors.As(err, &numeric):
		return "NumericalInstabilityError"
	case errors.As(err, &model):
		return "ModelError"
	}
	return "error"
}

// marshalStack renders the stack recorded by cockroachdb/errors.WithStack,
// innermost call first.
func marshalStack(err error) interface{} {
	var st *errors.ReportableStackTrace
	for e := err; e != nil && st == nil; e = errors.UnwrapOnce(e) {
		st = errors.GetReportableStackTrace(e)
	}
	if st == nil || len(st.Frames) == 0 {
		return nil
	}
	frames := make([]string, 0, len(st.Frames))
	for i := len(st.Frames) - 1; i >= 0; i-- {
		f := st.Frames[i]
		frames = append(frames, fmt.Sprintf("%s:%d %s", f.Filename, f.Lineno, f.Function))
	}
	return frames
}
