package op

import (
	"context"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// DeliverMessage records delivery of a message into a folder.
// Params: [folder_id (4)][message_id (4)][size (8)][digest (str)][received_ms (8)][flags (4)][tags (8)]
type DeliverMessage struct {
	Header
	Message mailbox.Message
}

func NewDeliverMessage(mailboxID uint64, msg mailbox.Message) *DeliverMessage {
	return &DeliverMessage{Header: NewHeader(mailboxID), Message: msg}
}

func (o *DeliverMessage) Tag() record.Tag { return TagDeliverMessage }

func (o *DeliverMessage) PrintableData() string {
	m := o.Message
	return fmt.Sprintf("folder=%d, id=%d, size=%d, digest=%s, flags=0x%x, tags=0x%x",
		m.FolderID, m.MessageID, m.Size, m.Digest, m.Flags, m.Tags)
}

func (o *DeliverMessage) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.DeliverMessage(ctx, o.Message)
}

func (o *DeliverMessage) encodeParams(enc *record.Encoder) {
	m := o.Message
	enc.I32(m.FolderID)
	enc.I32(m.MessageID)
	enc.I64(m.Size)
	enc.String("digest", m.Digest)
	enc.I64(m.ReceivedMs)
	enc.U32(m.Flags)
	enc.U64(m.Tags)
}

func (o *DeliverMessage) decodeParams(dec *record.Decoder) {
	o.Message = mailbox.Message{
		FolderID:   dec.I32("folder_id"),
		MessageID:  dec.I32("message_id"),
		Size:       dec.I64("size"),
		Digest:     dec.String("digest"),
		ReceivedMs: dec.I64("received_ms"),
		Flags:      dec.U32("flags"),
		Tags:       dec.U64("tags"),
	}
}

// MoveItem records moving items of one type to another folder.
// Params: [item_ids (list)][item_type (1)][target_folder_id (4)]
type MoveItem struct {
	Header
	ItemIDs        []int32
	ItemType       mailbox.ItemType
	TargetFolderID int32
}

func NewMoveItem(mailboxID uint64, ids []int32, it mailbox.ItemType, target int32) *MoveItem {
	return &MoveItem{Header: NewHeader(mailboxID), ItemIDs: ids, ItemType: it, TargetFolderID: target}
}

func (o *MoveItem) Tag() record.Tag { return TagMoveItem }

func (o *MoveItem) PrintableData() string {
	return fmt.Sprintf("ids=%v, type=%s, target=%d", o.ItemIDs, o.ItemType, o.TargetFolderID)
}

func (o *MoveItem) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.MoveItems(ctx, o.ItemIDs, o.ItemType, o.TargetFolderID)
}

func (o *MoveItem) encodeParams(enc *record.Encoder) {
	if !o.ItemType.Valid() {
		enc.Fail(invalidEnum("item_type", int(o.ItemType), int(mailbox.ItemTypeMax)))
		return
	}
	enc.I32List("item_ids", o.ItemIDs)
	enc.U8(uint8(o.ItemType))
	enc.I32(o.TargetFolderID)
}

func (o *MoveItem) decodeParams(dec *record.Decoder) {
	o.ItemIDs = dec.I32List("item_ids")
	o.ItemType = decodeItemType(dec)
	o.TargetFolderID = dec.I32("target_folder_id")
}

// DeleteItem records deletion of items of one type.
// Params: [item_ids (list)][item_type (1)]
type DeleteItem struct {
	Header
	ItemIDs  []int32
	ItemType mailbox.ItemType
}

func NewDeleteItem(mailboxID uint64, ids []int32, it mailbox.ItemType) *DeleteItem {
	return &DeleteItem{Header: NewHeader(mailboxID), ItemIDs: ids, ItemType: it}
}

func (o *DeleteItem) Tag() record.Tag { return TagDeleteItem }

func (o *DeleteItem) PrintableData() string {
	return fmt.Sprintf("ids=%v, type=%s", o.ItemIDs, o.ItemType)
}

func (o *DeleteItem) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.DeleteItems(ctx, o.ItemIDs, o.ItemType)
}

func (o *DeleteItem) encodeParams(enc *record.Encoder) {
	if !o.ItemType.Valid() {
		enc.Fail(invalidEnum("item_type", int(o.ItemType), int(mailbox.ItemTypeMax)))
		return
	}
	enc.I32List("item_ids", o.ItemIDs)
	enc.U8(uint8(o.ItemType))
}

func (o *DeleteItem) decodeParams(dec *record.Decoder) {
	o.ItemIDs = dec.I32List("item_ids")
	o.ItemType = decodeItemType(dec)
}

// SetItemFlags records a flag and tag update on a set of items.
// Params: [item_ids (list)][flags (4)][tags (8)]
type SetItemFlags struct {
	Header
	ItemIDs []int32
	Flags   uint32
	Tags    uint64
}

func NewSetItemFlags(mailboxID uint64, ids []int32, flags uint32, tags uint64) *SetItemFlags {
	return &SetItemFlags{Header: NewHeader(mailboxID), ItemIDs: ids, Flags: flags, Tags: tags}
}

func (o *SetItemFlags) Tag() record.Tag { return TagSetItemFlags }

func (o *SetItemFlags) PrintableData() string {
	return fmt.Sprintf("ids=%v, flags=0x%x, tags=0x%x", o.ItemIDs, o.Flags, o.Tags)
}

func (o *SetItemFlags) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.SetItemFlags(ctx, o.ItemIDs, o.Flags, o.Tags)
}

func (o *SetItemFlags) encodeParams(enc *record.Encoder) {
	enc.I32List("item_ids", o.ItemIDs)
	enc.U32(o.Flags)
	enc.U64(o.Tags)
}

func (o *SetItemFlags) decodeParams(dec *record.Decoder) {
	o.ItemIDs = dec.I32List("item_ids")
	o.Flags = dec.U32("flags")
	o.Tags = dec.U64("tags")
}

func decodeItemType(dec *record.Decoder) mailbox.ItemType {
	at := dec.Offset()
	it := mailbox.ItemType(dec.U8("item_type"))
	if dec.Err() == nil && !it.Valid() {
		dec.Fail(corruptEnum("item_type", at, int(it), int(mailbox.ItemTypeMax)))
	}
	return it
}
