package op

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// Operation tags. Never renumber or reuse a tag: logs written by older
// builds must decode the same way in newer ones.
const (
	TagGrantAccess    record.Tag = 16
	TagRevokeAccess   record.Tag = 17
	TagCreateFolder   record.Tag = 18
	TagRenameFolder   record.Tag = 19
	TagDeleteFolder   record.Tag = 20
	TagDeliverMessage record.Tag = 21
	TagMoveItem       record.Tag = 22
	TagDeleteItem     record.Tag = 23
	TagSetItemFlags   record.Tag = 24
	TagSaveDocument   record.Tag = 25
	TagSetConfig      record.Tag = 26
)

// Header is the part of every operation that is common to all kinds.
// TxnID and Seq are carried by the frame, MailboxID and Timestamp by the
// payload.
type Header struct {
	MailboxID uint64
	TxnID     uint64
	Seq       uint64
	// Timestamp is advisory only and never used for ordering.
	Timestamp time.Time
}

// Meta returns the header. It is promoted to every operation type.
func (h *Header) Meta() *Header {
	return h
}

// NewHeader returns a header for mailboxID stamped with the current time at
// millisecond precision (the precision the log stores).
func NewHeader(mailboxID uint64) Header {
	return Header{
		MailboxID: mailboxID,
		Timestamp: time.UnixMilli(time.Now().UnixMilli()),
	}
}

// Op is a logged mailbox mutation. The set of implementations is closed:
// only types in this package can satisfy it.
type Op interface {
	Tag() record.Tag
	Meta() *Header
	// Redo re-applies the mutation to a mailbox during recovery.
	Redo(ctx context.Context, h mailbox.Handle) error
	// PrintableData describes the parameters for log dumps.
	PrintableData() string

	encodeParams(enc *record.Encoder)
	decodeParams(dec *record.Decoder)
}

// Kind describes one registered operation kind.
type Kind struct {
	Tag  record.Tag
	Name string
	New  func() Op
}

var registry = map[record.Tag]Kind{
	TagGrantAccess:    {TagGrantAccess, "GrantAccess", func() Op { return &GrantAccess{} }},
	TagRevokeAccess:   {TagRevokeAccess, "RevokeAccess", func() Op { return &RevokeAccess{} }},
	TagCreateFolder:   {TagCreateFolder, "CreateFolder", func() Op { return &CreateFolder{} }},
	TagRenameFolder:   {TagRenameFolder, "RenameFolder", func() Op { return &RenameFolder{} }},
	TagDeleteFolder:   {TagDeleteFolder, "DeleteFolder", func() Op { return &DeleteFolder{} }},
	TagDeliverMessage: {TagDeliverMessage, "DeliverMessage", func() Op { return &DeliverMessage{} }},
	TagMoveItem:       {TagMoveItem, "MoveItem", func() Op { return &MoveItem{} }},
	TagDeleteItem:     {TagDeleteItem, "DeleteItem", func() Op { return &DeleteItem{} }},
	TagSetItemFlags:   {TagSetItemFlags, "SetItemFlags", func() Op { return &SetItemFlags{} }},
	TagSaveDocument:   {TagSaveDocument, "SaveDocument", func() Op { return &SaveDocument{} }},
	TagSetConfig:      {TagSetConfig, "SetConfig", func() Op { return &SetConfig{} }},
}

// Lookup returns the registered kind for tag.
func Lookup(tag record.Tag) (Kind, bool) {
	k, ok := registry[tag]
	return k, ok
}

// Name returns a human readable name for any tag, registered or not.
func Name(tag record.Tag) string {
	if tag.IsMarker() {
		return tag.String()
	}
	if k, ok := registry[tag]; ok {
		return k.Name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(tag))
}

// Kinds returns every registered kind ordered by tag.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for tag := record.FirstOpTag; len(out) < len(registry); tag++ {
		if k, ok := registry[tag]; ok {
			out = append(out, k)
		}
	}
	return out
}

// String formats an operation the way log dumps print it.
func String(o Op) string {
	h := o.Meta()
	return fmt.Sprintf("%s [mbox=%d txn=%d seq=%d] %s", Name(o.Tag()), h.MailboxID, h.TxnID, h.Seq, o.PrintableData())
}
