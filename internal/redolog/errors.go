package redolog

import "errors"

// Error kinds shared by every layer of the redo log. Lower level error types
// report their kind through errors.Is.
var (
	// ErrNotFound reports an unknown mailbox or an unregistered operation tag.
	ErrNotFound = errors.New("redolog: not found")
	// ErrCorruptLog reports a malformed frame, bad length prefix, checksum
	// mismatch or an undecodable payload.
	ErrCorruptLog = errors.New("redolog: corrupt log")
	// ErrIOFailure reports a failed write, flush, fsync, open or read on the
	// durable medium.
	ErrIOFailure = errors.New("redolog: io failure")
	// ErrTruncatedTail reports a partial final frame. Replay treats it as a
	// clean end of log.
	ErrTruncatedTail = errors.New("redolog: truncated tail")
)
