package errorutil

import (
	"fmt"
	"strings"
)

// Coordinates locates an error inside the redo log: which mailbox, which
// segment, where in the segment, and which transaction/entry was involved.
// Nil fields are omitted when formatting.
type Coordinates struct {
	Mailbox *uint64
	SegId   *uint64
	Offset  *int64
	TxnID   *uint64
	Seq     *uint64
}

// FormatCoordinates returns "mbox=A seg=B at=C txn=D seq=E" with only the
// non-nil parts present, or "" when nothing is set.
func (c *Coordinates) FormatCoordinates() string {
	if c == nil {
		return ""
	}

	var parts []string
	if c.Mailbox != nil {
		parts = append(parts, fmt.Sprintf("mbox=%d", *c.Mailbox))
	}
	if c.SegId != nil {
		parts = append(parts, fmt.Sprintf("seg=%d", *c.SegId))
	}
	if c.Offset != nil {
		parts = append(parts, fmt.Sprintf("at=%d", *c.Offset))
	}
	if c.TxnID != nil {
		parts = append(parts, fmt.Sprintf("txn=%d", *c.TxnID))
	}
	if c.Seq != nil {
		parts = append(parts, fmt.Sprintf("seq=%d", *c.Seq))
	}
	return strings.Join(parts, " ")
}

// String implements the Stringer interface for Coordinates.
func (c *Coordinates) String() string {
	return c.FormatCoordinates()
}

// Ptr returns a pointer to a copy of v. Used to fill Coordinates inline.
func Ptr[T any](v T) *T {
	return &v
}
