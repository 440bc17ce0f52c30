package op

import (
	"context"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// CreateFolder records a new folder.
// Params: [parent_id (4)][folder_id (4)][name (str)][view (1)][flags (4)][color (1)]
type CreateFolder struct {
	Header
	ParentID int32
	FolderID int32
	Name     string
	View     mailbox.ItemType
	Flags    uint32
	Color    uint8
}

func NewCreateFolder(mailboxID uint64, parentID, folderID int32, name string, view mailbox.ItemType) *CreateFolder {
	return &CreateFolder{
		Header:   NewHeader(mailboxID),
		ParentID: parentID,
		FolderID: folderID,
		Name:     name,
		View:     view,
	}
}

func (o *CreateFolder) Tag() record.Tag { return TagCreateFolder }

func (o *CreateFolder) PrintableData() string {
	return fmt.Sprintf("parent=%d, id=%d, name=%s, view=%s, flags=0x%x, color=%d",
		o.ParentID, o.FolderID, o.Name, o.View, o.Flags, o.Color)
}

func (o *CreateFolder) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.CreateFolder(ctx, o.ParentID, o.FolderID, o.Name, o.View, o.Flags, o.Color)
}

func (o *CreateFolder) encodeParams(enc *record.Encoder) {
	if !o.View.Valid() {
		enc.Fail(invalidEnum("view", int(o.View), int(mailbox.ItemTypeMax)))
		return
	}
	enc.I32(o.ParentID)
	enc.I32(o.FolderID)
	enc.String("name", o.Name)
	enc.U8(uint8(o.View))
	enc.U32(o.Flags)
	enc.U8(o.Color)
}

func (o *CreateFolder) decodeParams(dec *record.Decoder) {
	o.ParentID = dec.I32("parent_id")
	o.FolderID = dec.I32("folder_id")
	o.Name = dec.String("name")
	at := dec.Offset()
	o.View = mailbox.ItemType(dec.U8("view"))
	if dec.Err() == nil && !o.View.Valid() {
		dec.Fail(corruptEnum("view", at, int(o.View), int(mailbox.ItemTypeMax)))
		return
	}
	o.Flags = dec.U32("flags")
	o.Color = dec.U8("color")
}

// RenameFolder records a folder rename.
// Params: [folder_id (4)][name (str)]
type RenameFolder struct {
	Header
	FolderID int32
	Name     string
}

func NewRenameFolder(mailboxID uint64, folderID int32, name string) *RenameFolder {
	return &RenameFolder{Header: NewHeader(mailboxID), FolderID: folderID, Name: name}
}

func (o *RenameFolder) Tag() record.Tag { return TagRenameFolder }

func (o *RenameFolder) PrintableData() string {
	return fmt.Sprintf("id=%d, name=%s", o.FolderID, o.Name)
}

func (o *RenameFolder) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.RenameFolder(ctx, o.FolderID, o.Name)
}

func (o *RenameFolder) encodeParams(enc *record.Encoder) {
	enc.I32(o.FolderID)
	enc.String("name", o.Name)
}

func (o *RenameFolder) decodeParams(dec *record.Decoder) {
	o.FolderID = dec.I32("folder_id")
	o.Name = dec.String("name")
}

// DeleteFolder records removal of a folder and everything below it.
// Params: [folder_id (4)]
type DeleteFolder struct {
	Header
	FolderID int32
}

func NewDeleteFolder(mailboxID uint64, folderID int32) *DeleteFolder {
	return &DeleteFolder{Header: NewHeader(mailboxID), FolderID: folderID}
}

func (o *DeleteFolder) Tag() record.Tag { return TagDeleteFolder }

func (o *DeleteFolder) PrintableData() string {
	return fmt.Sprintf("id=%d", o.FolderID)
}

func (o *DeleteFolder) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.DeleteFolder(ctx, o.FolderID)
}

func (o *DeleteFolder) encodeParams(enc *record.Encoder) {
	enc.I32(o.FolderID)
}

func (o *DeleteFolder) decodeParams(dec *record.Decoder) {
	o.FolderID = dec.I32("folder_id")
}
