package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/redolog/internal/redolog"
)

// Store is the mailbox store as seen by the redo log.
type Store interface {
	// Lookup returns a handle for the mailbox, or an error matching
	// ErrMailboxNotFound when no such mailbox exists.
	Lookup(ctx context.Context, mailboxID uint64) (Handle, error)
}

// Handle applies logged mutations to one mailbox. Every method must be safe to
// call again with parameters that were already applied: either a no-op or an
// overwrite that leaves the same state.
type Handle interface {
	ID() uint64

	GrantAccess(ctx context.Context, folderID int32, grantee string, granteeType GranteeType, rights Rights, inherit bool) error
	RevokeAccess(ctx context.Context, folderID int32, grantee string) error
	CreateFolder(ctx context.Context, parentID, folderID int32, name string, view ItemType, flags uint32, color uint8) error
	RenameFolder(ctx context.Context, folderID int32, name string) error
	DeleteFolder(ctx context.Context, folderID int32) error
	DeliverMessage(ctx context.Context, msg Message) error
	MoveItems(ctx context.Context, itemIDs []int32, itemType ItemType, targetFolderID int32) error
	DeleteItems(ctx context.Context, itemIDs []int32, itemType ItemType) error
	SetItemFlags(ctx context.Context, itemIDs []int32, flags uint32, tags uint64) error
	SaveDocument(ctx context.Context, doc Document) error
	SetConfig(ctx context.Context, section, value string) error
}

var ErrMailboxNotFound = errors.New("mailbox: not found")

// NotFoundError reports an unknown mailbox id.
type NotFoundError struct {
	MailboxID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mailbox: %d not found", e.MailboxID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrMailboxNotFound || target == redolog.ErrNotFound
}
