package logger

import "strings"

// Logger is the logging interface used across the redo log packages.
// Fields are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
}

// Closeable is implemented by loggers that hold resources.
type Closeable interface {
	Close() error
}

// Level is a minimum severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn" or "error" to a Level. Anything
// else is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// NoOpLogger discards everything. It is the default for every component
// constructed without a logger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...interface{})        {}
func (NoOpLogger) Info(string, ...interface{})         {}
func (NoOpLogger) Warn(string, ...interface{})         {}
func (NoOpLogger) Error(string, error, ...interface{}) {}

var _ Logger = NoOpLogger{}

// OrNoOp returns lg, or a NoOpLogger when lg is nil.
func OrNoOp(lg Logger) Logger {
	if lg == nil {
		return NoOpLogger{}
	}
	return lg
}

// With returns a logger that prepends fields to every call.
func With(lg Logger, fields ...interface{}) Logger {
	lg = OrNoOp(lg)
	if len(fields) == 0 {
		return lg
	}
	if w, ok := lg.(*fieldLogger); ok {
		return &fieldLogger{next: w.next, fields: append(append([]interface{}{}, w.fields...), fields...)}
	}
	return &fieldLogger{next: lg, fields: fields}
}

type fieldLogger struct {
	next   Logger
	fields []interface{}
}

func (l *fieldLogger) merge(fields []interface{}) []interface{} {
	return append(append(make([]interface{}, 0, len(l.fields)+len(fields)), l.fields...), fields...)
}

func (l *fieldLogger) Debug(msg string, fields ...interface{}) { l.next.Debug(msg, l.merge(fields)...) }
func (l *fieldLogger) Info(msg string, fields ...interface{})  { l.next.Info(msg, l.merge(fields)...) }
func (l *fieldLogger) Warn(msg string, fields ...interface{})  { l.next.Warn(msg, l.merge(fields)...) }
func (l *fieldLogger) Error(msg string, err error, fields ...interface{}) {
	l.next.Error(msg, err, l.merge(fields)...)
}
