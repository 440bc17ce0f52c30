package logger

import (
	"errors"
	"fmt"
)

var (
	ErrLogDir    = errors.New("logger: log directory unavailable")
	ErrLogOutput = errors.New("logger: log output unavailable")
	ErrLogClose  = errors.New("logger: close failed")
)

// LoggerError reports a logger that could not be set up or torn down.
type LoggerError struct {
	Op    string
	Err   error
	Path  string
	Cause error
}

func (e *LoggerError) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *LoggerError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func wrapLoggerErr(op string, sentinel error, path string, cause error) error {
	return &LoggerError{Op: op, Err: sentinel, Path: path, Cause: cause}
}
