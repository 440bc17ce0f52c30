package wal

import (
	"errors"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog"
)

var (
	ErrLogClosed       = errors.New("wal: log closed")
	ErrSegmentNotFound = errors.New("wal: segment not found")
	ErrSegmentList     = errors.New("wal: list segments failed")
	ErrSegmentOpen     = errors.New("wal: open segment failed")
	ErrSegmentCreate   = errors.New("wal: create segment failed")
	ErrSegmentRotate   = errors.New("wal: rotate segment failed")
	ErrSegmentClose    = errors.New("wal: close segment failed")
	ErrSegmentFlush    = errors.New("wal: flush segment failed")
	ErrSegmentSync     = errors.New("wal: fsync segment failed")
	ErrSegmentRepair   = errors.New("wal: repair segment tail failed")
	ErrSegmentRemove   = errors.New("wal: remove segment failed")
	ErrSegmentCorrupt  = errors.New("wal: segment corrupt")
	ErrAppendFailed    = errors.New("wal: append failed")
	ErrInvalidLogDir   = errors.New("wal: invalid log dir")
	ErrBatchFlush      = errors.New("wal: background flush failed")
)

// LogError wraps log-level failures with the segment they concern. Every
// LogError is an I/O failure except ErrSegmentCorrupt, which is corruption.
type LogError struct {
	Err error

	Dir   string
	SegID uint64

	// Op is a short label for where the error occurred:
	// "open", "append", "flush", "fsync", "rotate", "close", "list", etc.
	Op string

	Cause error
}

func (e *LogError) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.SegID != 0 {
		msg = fmt.Sprintf("%s (seg=%d)", msg, e.SegID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *LogError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func (e *LogError) Is(target error) bool {
	switch target {
	case redolog.ErrIOFailure:
		return !errors.Is(e.Err, ErrSegmentCorrupt) && !errors.Is(e.Err, ErrLogClosed)
	case redolog.ErrCorruptLog:
		return errors.Is(e.Err, ErrSegmentCorrupt)
	}
	return false
}

func wrapLogErr(op string, sentinel error, dir string, segID uint64, cause error) error {
	return &LogError{
		Err:   sentinel,
		Dir:   dir,
		SegID: segID,
		Op:    op,
		Cause: cause,
	}
}

func logClosed(dir string) error {
	return &LogError{Err: ErrLogClosed, Dir: dir, Op: "log"}
}
