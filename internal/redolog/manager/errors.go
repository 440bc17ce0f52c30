package manager

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRoot        = errors.New("manager: invalid log root")
	ErrInvalidMailbox     = errors.New("manager: invalid mailbox id")
	ErrInitFailed         = errors.New("manager: init failed")
	ErrRecoveryFailed     = errors.New("manager: recovery failed")
	ErrMailboxUnrecovered = errors.New("manager: mailbox failed recovery")
	ErrLogOpenFailed      = errors.New("manager: log open failed")
	ErrCheckpointAhead    = errors.New("manager: checkpoint beyond log")
	ErrCheckpointFailed   = errors.New("manager: checkpoint failed")
	ErrRotateFailed       = errors.New("manager: rotate failed")
	ErrClosed             = errors.New("manager: closed")
	ErrCloseFailed        = errors.New("manager: close failed")
)

// ManagerError wraps manager-layer failures with stable sentinels for
// errors.Is, while preserving Cause for inspection and logging.
type ManagerError struct {
	Err error

	// Op describes the operation: "open", "journal", "checkpoint", "rotate", "close".
	Op string

	Root      string
	MailboxID uint64

	Cause error
}

func (e *ManagerError) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.MailboxID != 0 {
		msg = fmt.Sprintf("%s (mailbox=%d)", msg, e.MailboxID)
	} else if e.Root != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Root)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause, so callers can match the
// redolog error kinds carried by the cause.
func (e *ManagerError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func (e *ManagerError) CauseErr() error { return e.Cause }

func (m *Manager) wrapErr(op string, sentinel error, mailboxID uint64, cause error) error {
	return &ManagerError{
		Err:       sentinel,
		Op:        op,
		Root:      m.root,
		MailboxID: mailboxID,
		Cause:     cause,
	}
}
