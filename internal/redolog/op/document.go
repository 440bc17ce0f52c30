package op

import (
	"context"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// SaveDocument records a document revision.
// Params: [folder_id (4)][item_id (4)][name (str)][content_type (str)][author (str)][size (8)][digest (str)]
type SaveDocument struct {
	Header
	Document mailbox.Document
}

func NewSaveDocument(mailboxID uint64, doc mailbox.Document) *SaveDocument {
	return &SaveDocument{Header: NewHeader(mailboxID), Document: doc}
}

func (o *SaveDocument) Tag() record.Tag { return TagSaveDocument }

func (o *SaveDocument) PrintableData() string {
	d := o.Document
	return fmt.Sprintf("folder=%d, id=%d, name=%s, ctype=%s, author=%s, size=%d, digest=%s",
		d.FolderID, d.ItemID, d.Name, d.ContentType, d.Author, d.Size, d.Digest)
}

func (o *SaveDocument) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.SaveDocument(ctx, o.Document)
}

func (o *SaveDocument) encodeParams(enc *record.Encoder) {
	d := o.Document
	enc.I32(d.FolderID)
	enc.I32(d.ItemID)
	enc.String("name", d.Name)
	enc.String("content_type", d.ContentType)
	enc.String("author", d.Author)
	enc.I64(d.Size)
	enc.String("digest", d.Digest)
}

func (o *SaveDocument) decodeParams(dec *record.Decoder) {
	o.Document = mailbox.Document{
		FolderID:    dec.I32("folder_id"),
		ItemID:      dec.I32("item_id"),
		Name:        dec.String("name"),
		ContentType: dec.String("content_type"),
		Author:      dec.String("author"),
		Size:        dec.I64("size"),
		Digest:      dec.String("digest"),
	}
}

// SetConfig records a mailbox configuration section update.
// Params: [section (str)][value (str)]
type SetConfig struct {
	Header
	Section string
	Value   string
}

func NewSetConfig(mailboxID uint64, section, value string) *SetConfig {
	return &SetConfig{Header: NewHeader(mailboxID), Section: section, Value: value}
}

func (o *SetConfig) Tag() record.Tag { return TagSetConfig }

func (o *SetConfig) PrintableData() string {
	return fmt.Sprintf("section=%s, len=%d", o.Section, len(o.Value))
}

func (o *SetConfig) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.SetConfig(ctx, o.Section, o.Value)
}

func (o *SetConfig) encodeParams(enc *record.Encoder) {
	enc.String("section", o.Section)
	enc.String("value", o.Value)
}

func (o *SetConfig) decodeParams(dec *record.Decoder) {
	o.Section = dec.String("section")
	o.Value = dec.String("value")
}
