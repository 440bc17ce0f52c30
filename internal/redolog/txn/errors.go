package txn

import (
	"errors"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

var (
	// Returned when the next txn ID is 0 or otherwise forbidden.
	ErrInvalidTxnID = errors.New("txn: invalid transaction id")

	// Returned when SetNext attempts to move the allocator backwards.
	ErrTxnIDRegression = errors.New("txn: transaction id regression")

	// Returned when Next would overflow uint64.
	ErrTxnIDOverflow = errors.New("txn: transaction id overflow")
)

var (
	// ErrTxnNotActive reports a txn ID that was never begun on this journal
	// or has already been committed or aborted.
	ErrTxnNotActive = errors.New("txn: transaction not active")
	// ErrMailboxMismatch reports an operation addressed to another mailbox.
	ErrMailboxMismatch = errors.New("txn: operation belongs to another mailbox")
	ErrJournalClosed   = errors.New("txn: journal closed")
	ErrNilOp           = errors.New("txn: nil operation")

	ErrEncodeOp     = errors.New("txn: encode op failed")
	ErrAppendStart  = errors.New("txn: append START failed")
	ErrAppendOp     = errors.New("txn: append op failed")
	ErrAppendCommit = errors.New("txn: append COMMIT failed")
	ErrAppendAbort  = errors.New("txn: append ABORT failed")
	ErrFlush        = errors.New("txn: flush failed")
	ErrFSync        = errors.New("txn: fsync failed")
)

type TxnIDError struct {
	Err  error
	Have uint64
	Want uint64
}

func (e *TxnIDError) Error() string { return e.Err.Error() }
func (e *TxnIDError) Unwrap() error { return e.Err }

// Stage is where a journal call failed. Useful for tests and debugging.
type Stage uint8

const (
	StageUnknown Stage = iota
	StageAllocTxnID
	StageValidate
	StageEncodeOp
	StageAppendStart
	StageAppendOp
	StageAppendCommit
	StageAppendAbort
	StageFlush
	StageFSync
)

func (s Stage) String() string {
	switch s {
	case StageAllocTxnID:
		return "alloc_txn_id"
	case StageValidate:
		return "validate"
	case StageEncodeOp:
		return "encode_op"
	case StageAppendStart:
		return "append_start"
	case StageAppendOp:
		return "append_op"
	case StageAppendCommit:
		return "append_commit"
	case StageAppendAbort:
		return "append_abort"
	case StageFlush:
		return "flush"
	case StageFSync:
		return "fsync"
	default:
		return "unknown"
	}
}

// JournalError wraps journal failures with a stable sentinel and the
// coordinates of the failed call. errors.Is matches both the sentinel and
// the cause, so an I/O failure from the log is still redolog.ErrIOFailure.
type JournalError struct {
	Err   error
	Stage Stage

	MailboxID uint64
	TxnID     uint64
	Tag       record.Tag // for op stages, else 0

	Cause error
}

func (e *JournalError) Error() string {
	base := fmt.Sprintf("txn journal failed (%s) mbox=%d", e.Stage.String(), e.MailboxID)
	if e.TxnID != 0 {
		base = fmt.Sprintf("%s txn=%d", base, e.TxnID)
	}
	if e.Tag != 0 {
		base = fmt.Sprintf("%s op=%s", base, op.Name(e.Tag))
	}
	if e.Cause != nil {
		base = fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *JournalError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func (e *JournalError) CauseErr() error { return e.Cause }

func (j *Journal) wrapErr(stage Stage, sentinel error, txnID uint64, cause error) error {
	return &JournalError{
		Err:       sentinel,
		Stage:     stage,
		MailboxID: j.mailboxID,
		TxnID:     txnID,
		Cause:     cause,
	}
}

func (j *Journal) wrapOpErr(stage Stage, sentinel error, txnID uint64, tag record.Tag, cause error) error {
	return &JournalError{
		Err:       sentinel,
		Stage:     stage,
		MailboxID: j.mailboxID,
		TxnID:     txnID,
		Tag:       tag,
		Cause:     cause,
	}
}
