package op

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

var ErrUnknownTag = errors.New("op: unknown operation tag")

// UnknownTagError reports an entry whose tag no registered kind owns, for
// example one written by a newer build. Decoding cannot continue past it, so
// it is log corruption as well as a lookup miss.
type UnknownTagError struct {
	Tag record.Tag
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("op: unknown operation tag %d", uint16(e.Tag))
}

func (e *UnknownTagError) Is(target error) bool {
	return target == ErrUnknownTag || target == redolog.ErrNotFound || target == redolog.ErrCorruptLog
}

// RedoError wraps a failure returned by the mailbox store while re-applying an operation.
type RedoError struct {
	Tag   record.Tag
	Seq   uint64
	TxnID uint64
	Err   error
}

func (e *RedoError) Error() string {
	return fmt.Sprintf("op: redo %s seq=%d txn=%d: %v", Name(e.Tag), e.Seq, e.TxnID, e.Err)
}

func (e *RedoError) Unwrap() error { return e.Err }

func invalidEnum(field string, have int, max int) error {
	return &record.CodecError{
		Kind:  record.CodecInvalid,
		Field: field,
		Want:  max,
		Have:  have,
		Err:   fmt.Errorf("%w: value out of range", record.ErrCodecInvalid),
	}
}

func corruptEnum(field string, at int, have int, max int) error {
	return &record.CodecError{
		Kind:  record.CodecCorrupt,
		Field: field,
		At:    at,
		Want:  max,
		Have:  have,
		Err:   fmt.Errorf("%w: value out of range", record.ErrCodecCorrupt),
	}
}

// Apply runs o.Redo and wraps any failure with the operation's coordinates.
func Apply(ctx context.Context, o Op, h mailbox.Handle) error {
	if err := o.Redo(ctx, h); err != nil {
		m := o.Meta()
		return &RedoError{Tag: o.Tag(), Seq: m.Seq, TxnID: m.TxnID, Err: err}
	}
	return nil
}
