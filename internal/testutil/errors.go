package testutil

import "github.com/julianstephens/redolog/internal/redolog"

// Error is an injected failure. When Kind is set the error also matches that
// redolog error kind, so fakes can stand in for real I/O or lookup failures.
type Error struct {
	Op   string
	Kind error
}

func (e *Error) Error() string {
	return "testutil: injected " + e.Op + " failure"
}

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewError returns an injected failure for op.
func NewError(op string) *Error {
	return &Error{Op: op}
}

// NewIOError returns an injected failure for op that matches redolog.ErrIOFailure.
func NewIOError(op string) *Error {
	return &Error{Op: op, Kind: redolog.ErrIOFailure}
}
