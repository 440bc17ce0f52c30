package recovery

import (
	"errors"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/errorutil"
	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

var (
	ErrSegmentOrder  = errors.New("recovery: invalid segment order")
	ErrSegmentOpen   = errors.New("recovery: failed to open segment")
	ErrSequenceGap   = errors.New("recovery: sequence gap")
	ErrMailboxLookup = errors.New("recovery: mailbox lookup failed")
	ErrWrongMailbox  = errors.New("recovery: entry belongs to another mailbox")
	ErrDoubleStart   = errors.New("recovery: START for an open transaction")
)

// ReplaySourceErrorKind says which part of locating or opening the log failed.
type ReplaySourceErrorKind int

const (
	ReplaySourceUnknown ReplaySourceErrorKind = iota
	ReplaySourceSegmentOrder
	ReplaySourceSegmentOpen
	ReplaySourceSequenceGap
	ReplaySourceMailbox
)

func (k ReplaySourceErrorKind) String() string {
	switch k {
	case ReplaySourceSegmentOrder:
		return "segment_order"
	case ReplaySourceSegmentOpen:
		return "segment_open"
	case ReplaySourceSequenceGap:
		return "sequence_gap"
	case ReplaySourceMailbox:
		return "mailbox"
	default:
		return "unknown"
	}
}

// ReplaySourceError reports a problem with the set of segments or the target
// mailbox rather than with a single frame.
type ReplaySourceError struct {
	*errorutil.Coordinates
	Kind  ReplaySourceErrorKind
	Cause error
	Err   error
}

func (e *ReplaySourceError) Error() string {
	coords := ""
	if e.Coordinates != nil {
		coords = e.FormatCoordinates()
	}
	return fmt.Sprintf("recovery: source error %s kind=%s: %v (cause: %v)",
		coords, e.Kind, e.Err, e.Cause,
	)
}

func (e *ReplaySourceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func (e *ReplaySourceError) Is(target error) bool {
	// Segment ordering problems and gaps mean the log itself is damaged. Open
	// and lookup failures classify through their cause.
	if target == redolog.ErrCorruptLog {
		return e.Kind == ReplaySourceSegmentOrder || e.Kind == ReplaySourceSequenceGap
	}
	return false
}

// ReplayDecodeError reports a frame or payload that could not be decoded.
type ReplayDecodeError struct {
	*errorutil.Coordinates
	// SafeOffset is where the segment could be cut to drop the bad entry.
	SafeOffset  int64
	DeclaredLen uint32
	Tag         record.Tag
	Err         error
}

func (e *ReplayDecodeError) Error() string {
	coords := ""
	if e.Coordinates != nil {
		coords = e.FormatCoordinates()
	}
	return fmt.Sprintf("recovery: decode error %s safe_at=%d tag=%s declared_len=%d: %v",
		coords, e.SafeOffset, op.Name(e.Tag), e.DeclaredLen, e.Err,
	)
}

func (e *ReplayDecodeError) Unwrap() error { return e.Err }

// Every decode failure that reaches the caller is corruption: a truncated
// final frame is handled as end of log before an error is built.
func (e *ReplayDecodeError) Is(target error) bool {
	return target == redolog.ErrCorruptLog
}

// ReplayLogicError reports entries that decode but do not form a valid
// transaction stream.
type ReplayLogicError struct {
	*errorutil.Coordinates
	Tag record.Tag
	Err error
}

func (e *ReplayLogicError) Error() string {
	return fmt.Sprintf("recovery: %v %s", e.Err, e.FormatCoordinates())
}

func (e *ReplayLogicError) Unwrap() error { return e.Err }

func (e *ReplayLogicError) Is(target error) bool {
	return target == redolog.ErrCorruptLog
}

// ReplayApplyError reports a redo action the mailbox store refused.
type ReplayApplyError struct {
	*errorutil.Coordinates
	Tag record.Tag
	Err error
}

func (e *ReplayApplyError) Error() string {
	return fmt.Sprintf("recovery: apply %s %s: %v", op.Name(e.Tag), e.FormatCoordinates(), e.Err)
}

func (e *ReplayApplyError) Unwrap() error { return e.Err }

// MailboxRecoveryError is the per-mailbox failure recorded in a Report.
type MailboxRecoveryError struct {
	MailboxID  uint64
	Checkpoint uint64
	ReachedSeq uint64
	Err        error
}

func (e *MailboxRecoveryError) Error() string {
	return fmt.Sprintf("recovery: mbox=%d failed after seq=%d (checkpoint=%d): %v",
		e.MailboxID, e.ReachedSeq, e.Checkpoint, e.Err)
}

func (e *MailboxRecoveryError) Unwrap() error { return e.Err }
