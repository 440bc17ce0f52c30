package op

import (
	"context"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// GrantAccess records a folder permission grant.
// Params: [folder_id (4)][grantee (str)][grantee_type (1)][rights (2)][inherit (1)]
type GrantAccess struct {
	Header
	FolderID    int32
	Grantee     string
	GranteeType mailbox.GranteeType
	Rights      mailbox.Rights
	Inherit     bool
}

// NewGrantAccess builds a grant for mailboxID stamped with the current time.
func NewGrantAccess(mailboxID uint64, folderID int32, grantee string, gt mailbox.GranteeType, rights mailbox.Rights, inherit bool) *GrantAccess {
	return &GrantAccess{
		Header:      NewHeader(mailboxID),
		FolderID:    folderID,
		Grantee:     grantee,
		GranteeType: gt,
		Rights:      rights,
		Inherit:     inherit,
	}
}

func (o *GrantAccess) Tag() record.Tag { return TagGrantAccess }

func (o *GrantAccess) PrintableData() string {
	return fmt.Sprintf("id=%d, grantee=%s, type=%s, rights=%s, inherit=%t",
		o.FolderID, o.Grantee, o.GranteeType, o.Rights, o.Inherit)
}

func (o *GrantAccess) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.GrantAccess(ctx, o.FolderID, o.Grantee, o.GranteeType, o.Rights, o.Inherit)
}

func (o *GrantAccess) encodeParams(enc *record.Encoder) {
	if !o.GranteeType.Valid() {
		enc.Fail(invalidEnum("grantee_type", int(o.GranteeType), int(mailbox.GranteeTypeMax)))
		return
	}
	enc.I32(o.FolderID)
	enc.String("grantee", o.Grantee)
	enc.U8(uint8(o.GranteeType))
	enc.U16(uint16(o.Rights))
	enc.Bool(o.Inherit)
}

func (o *GrantAccess) decodeParams(dec *record.Decoder) {
	o.FolderID = dec.I32("folder_id")
	o.Grantee = dec.String("grantee")
	at := dec.Offset()
	o.GranteeType = mailbox.GranteeType(dec.U8("grantee_type"))
	if dec.Err() == nil && !o.GranteeType.Valid() {
		dec.Fail(corruptEnum("grantee_type", at, int(o.GranteeType), int(mailbox.GranteeTypeMax)))
		return
	}
	o.Rights = mailbox.Rights(dec.U16("rights"))
	o.Inherit = dec.Bool("inherit")
}

// RevokeAccess removes a grantee from a folder ACL.
// Params: [folder_id (4)][grantee (str)]
type RevokeAccess struct {
	Header
	FolderID int32
	Grantee  string
}

func NewRevokeAccess(mailboxID uint64, folderID int32, grantee string) *RevokeAccess {
	return &RevokeAccess{Header: NewHeader(mailboxID), FolderID: folderID, Grantee: grantee}
}

func (o *RevokeAccess) Tag() record.Tag { return TagRevokeAccess }

func (o *RevokeAccess) PrintableData() string {
	return fmt.Sprintf("id=%d, grantee=%s", o.FolderID, o.Grantee)
}

func (o *RevokeAccess) Redo(ctx context.Context, h mailbox.Handle) error {
	return h.RevokeAccess(ctx, o.FolderID, o.Grantee)
}

func (o *RevokeAccess) encodeParams(enc *record.Encoder) {
	enc.I32(o.FolderID)
	enc.String("grantee", o.Grantee)
}

func (o *RevokeAccess) decodeParams(dec *record.Decoder) {
	o.FolderID = dec.I32("folder_id")
	o.Grantee = dec.String("grantee")
}
