package memstore_test

import (
	"context"
	"errors"
	"testing"

	tst "github.com/julianstephens/go-utils/tests"

	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/mailbox/memstore"
)

func TestLookup_NotFound(t *testing.T) {
	s := memstore.New()
	_, err := s.Lookup(context.Background(), 99)
	tst.AssertTrue(t, errors.Is(err, redolog.ErrNotFound), "expected ErrNotFound, got %v", err)
	tst.AssertTrue(t, errors.Is(err, mailbox.ErrMailboxNotFound), "expected ErrMailboxNotFound")

	s = memstore.New(memstore.WithAutoCreate())
	h, err := s.Lookup(context.Background(), 99)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, h.ID(), uint64(99))
	tst.RequireDeepEqual(t, s.IDs(), []uint64{99})
}

// TestMailbox_Idempotent tests that applying the same mutations twice gives the same state
func TestMailbox_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := memstore.New().Create(42)

	apply := func() {
		tst.RequireNoError(t, m.CreateFolder(ctx, memstore.RootFolderID, 10, "Projects", mailbox.ItemMessage, 0, 3))
		tst.RequireNoError(t, m.GrantAccess(ctx, 10, "bob", mailbox.GranteeUser, mailbox.RightRead, false))
		tst.RequireNoError(t, m.DeliverMessage(ctx, mailbox.Message{FolderID: 10, MessageID: 300, Size: 10}))
		tst.RequireNoError(t, m.SetItemFlags(ctx, []int32{300}, 1, 2))
		tst.RequireNoError(t, m.SetConfig(ctx, "prefs", "v1"))
		tst.RequireNoError(t, m.DeleteItems(ctx, []int32{301}, mailbox.ItemMessage))
	}

	apply()
	first := m.Snapshot()
	apply()
	tst.RequireDeepEqual(t, m.Snapshot(), first)

	tst.RequireDeepEqual(t, first.Folders[10].ACL["bob"].Rights, mailbox.RightRead)
	tst.RequireDeepEqual(t, first.Items[300].Flags, uint32(1))
	tst.RequireDeepEqual(t, first.Config["prefs"], "v1")
}

func TestMailbox_DeleteFolderCascades(t *testing.T) {
	ctx := context.Background()
	m := memstore.New().Create(1)

	tst.RequireNoError(t, m.CreateFolder(ctx, memstore.RootFolderID, 10, "a", mailbox.ItemMessage, 0, 0))
	tst.RequireNoError(t, m.CreateFolder(ctx, 10, 11, "b", mailbox.ItemMessage, 0, 0))
	tst.RequireNoError(t, m.DeliverMessage(ctx, mailbox.Message{FolderID: 11, MessageID: 5}))
	tst.RequireNoError(t, m.SaveDocument(ctx, mailbox.Document{FolderID: memstore.RootFolderID, ItemID: 6, Name: "doc"}))

	tst.RequireNoError(t, m.DeleteFolder(ctx, 10))
	tst.RequireNoError(t, m.DeleteFolder(ctx, 10))

	snap := m.Snapshot()
	_, ok := snap.Folders[11]
	tst.AssertFalse(t, ok, "subfolder should be deleted")
	_, ok = snap.Items[5]
	tst.AssertFalse(t, ok, "message in subfolder should be deleted")
	_, ok = snap.Items[6]
	tst.AssertTrue(t, ok, "document in root should survive")

	tst.AssertNotNil(t, m.DeleteFolder(ctx, memstore.RootFolderID), "root folder must not be deletable")
}

func TestMailbox_MissingFolder(t *testing.T) {
	ctx := context.Background()
	m := memstore.New().Create(1)

	err := m.GrantAccess(ctx, 404, "bob", mailbox.GranteeUser, mailbox.RightRead, false)
	tst.AssertTrue(t, errors.Is(err, memstore.ErrNoSuchFolder), "expected ErrNoSuchFolder, got %v", err)

	err = m.MoveItems(ctx, []int32{1}, mailbox.ItemMessage, 404)
	tst.AssertTrue(t, errors.Is(err, memstore.ErrNoSuchFolder), "expected ErrNoSuchFolder, got %v", err)
}

func TestMailbox_SnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	m := memstore.New().Create(1)
	tst.RequireNoError(t, m.GrantAccess(ctx, memstore.RootFolderID, "bob", mailbox.GranteeUser, mailbox.RightRead, false))

	snap := m.Snapshot()
	snap.Folders[memstore.RootFolderID].ACL["eve"] = memstore.Grant{}
	snap.Config["x"] = "y"

	again := m.Snapshot()
	_, ok := again.Folders[memstore.RootFolderID].ACL["eve"]
	tst.AssertFalse(t, ok, "snapshot mutation leaked into mailbox")
	tst.RequireDeepEqual(t, len(again.Config), 0)
}
