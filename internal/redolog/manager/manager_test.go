package manager_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/alecthomas/assert/v2"
	tst "github.com/julianstephens/go-utils/tests"

	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/checkpoint"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/mailbox/memstore"
	"github.com/julianstephens/redolog/internal/redolog/manager"
	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/txn"
	"github.com/julianstephens/redolog/internal/redolog/wal"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
	"github.com/julianstephens/redolog/internal/testutil"
)

const mbox uint64 = 42

func open(t *testing.T, root string, store mailbox.Store, cps checkpoint.Store) *manager.Manager {
	t.Helper()
	m, err := manager.Open(context.Background(), root, manager.Opts{Options: redolog.DefaultOptions()}, store, cps, nil)
	tst.RequireNoError(t, err)
	return m
}

func createAndShare(ctx context.Context) func(tx *txn.Tx) error {
	return func(tx *txn.Tx) error {
		if _, err := tx.Record(ctx, op.NewCreateFolder(mbox, memstore.RootFolderID, 5, "Work", mailbox.ItemMessage)); err != nil {
			return err
		}
		_, err := tx.Record(ctx, op.NewGrantAccess(mbox, 5, "bob", mailbox.GranteeUser, mailbox.RightRead, false))
		return err
	}
}

func TestManager_ReopenRecoversCommitted(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	m := open(t, root, memstore.New(memstore.WithAutoCreate()), checkpoint.NewMemStore())
	j, err := m.Journal(mbox)
	tst.RequireNoError(t, err)
	firstTxn, err := j.Run(ctx, createAndShare(ctx))
	tst.RequireNoError(t, err)

	// An abandoned transaction must not survive the restart.
	pending, err := j.Begin(ctx)
	tst.RequireNoError(t, err)
	_, err = j.Record(ctx, pending, op.NewRenameFolder(mbox, 5, "Lost"))
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, m.Close())

	store := memstore.New(memstore.WithAutoCreate())
	cps := checkpoint.NewMemStore()
	m2 := open(t, root, store, cps)
	defer func() { _ = m2.Close() }()

	outcome, ok := m2.Report().Outcome(mbox)
	assert.True(t, ok)
	tst.RequireNoError(t, outcome.Err)
	assert.Equal(t, 2, outcome.Result.Applied)
	assert.Equal(t, 1, outcome.Result.DiscardedTxns)

	box, err := store.Mailbox(mbox)
	tst.RequireNoError(t, err)
	snap := box.Snapshot()
	assert.Equal(t, "Work", snap.Folders[5].Name)
	assert.Equal(t, mailbox.RightRead, snap.Folders[5].ACL["bob"].Rights)

	cp, err := cps.Read(ctx, mbox)
	tst.RequireNoError(t, err)
	assert.Equal(t, uint64(2), cp)

	j2, err := m2.Journal(mbox)
	tst.RequireNoError(t, err)
	next, err := j2.Begin(ctx)
	tst.RequireNoError(t, err)
	tst.AssertTrue(t, next > pending && pending > firstTxn, "txn ids must keep increasing across restarts")
	assert.Equal(t, []uint64{mbox}, m2.Mailboxes())
}

func TestManager_CheckpointPurgesSegments(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cps := checkpoint.NewMemStore()

	m := open(t, root, memstore.New(memstore.WithAutoCreate()), cps)
	j, err := m.Journal(mbox)
	tst.RequireNoError(t, err)

	_, err = j.Run(ctx, func(tx *txn.Tx) error {
		_, err := tx.Record(ctx, op.NewSetConfig(mbox, "lang", "en"))
		return err
	})
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, m.Rotate(mbox))
	_, err = j.Run(ctx, func(tx *txn.Tx) error {
		_, err := tx.Record(ctx, op.NewSetConfig(mbox, "tz", "UTC"))
		return err
	})
	tst.RequireNoError(t, err)

	removed, err := m.Checkpoint(ctx, mbox, 1)
	tst.RequireNoError(t, err)
	assert.Equal(t, []uint64{1}, removed)

	segs, err := wal.ListSegments(wal.MailboxDir(root, mbox))
	tst.RequireNoError(t, err)
	assert.Equal(t, []uint64{2}, segs)
	tst.RequireNoError(t, m.Close())

	// Replay resumes from the checkpoint with the first segment gone.
	store := memstore.New(memstore.WithAutoCreate())
	m2 := open(t, root, store, cps)
	defer func() { _ = m2.Close() }()
	outcome, _ := m2.Report().Outcome(mbox)
	tst.RequireNoError(t, outcome.Err)
	assert.Equal(t, 1, outcome.Result.Applied)

	box, _ := store.Mailbox(mbox)
	assert.Equal(t, map[string]string{"tz": "UTC"}, box.Snapshot().Config)
}

func TestManager_CheckpointAhead(t *testing.T) {
	ctx := context.Background()
	m := open(t, t.TempDir(), memstore.New(memstore.WithAutoCreate()), checkpoint.NewMemStore())
	defer func() { _ = m.Close() }()

	_, err := m.Checkpoint(ctx, mbox, 5)
	assert.True(t, errors.Is(err, manager.ErrCheckpointAhead))
}

// TestManager_LogBehindCheckpoint tests that sequence numbers a checkpoint
// already covers are never handed out again.
func TestManager_LogBehindCheckpoint(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cps := checkpoint.NewMemStore()
	tst.RequireNoError(t, cps.Write(ctx, mbox, 10))

	m := open(t, root, memstore.New(memstore.WithAutoCreate()), cps)
	j, err := m.Journal(mbox)
	tst.RequireNoError(t, err)
	var seq uint64
	_, err = j.Run(ctx, func(tx *txn.Tx) error {
		seq, err = tx.Record(ctx, op.NewSetConfig(mbox, "lang", "en"))
		return err
	})
	tst.RequireNoError(t, err)
	assert.Equal(t, uint64(11), seq)
	tst.RequireNoError(t, m.Close())

	store := memstore.New(memstore.WithAutoCreate())
	m2 := open(t, root, store, cps)
	defer func() { _ = m2.Close() }()
	outcome, _ := m2.Report().Outcome(mbox)
	tst.RequireNoError(t, outcome.Err)
	assert.Equal(t, 1, outcome.Result.Applied)
	box, _ := store.Mailbox(mbox)
	assert.Equal(t, map[string]string{"lang": "en"}, box.Snapshot().Config)
}

func TestManager_UnrecoveredMailboxIsRefused(t *testing.T) {
	const bad uint64 = 43
	root := t.TempDir()
	dir := wal.MailboxDir(root, bad)
	tst.RequireNoError(t, os.MkdirAll(dir, 0o750))
	_, err := testutil.NewSequence().
		Start(1).
		Raw(1, record.Tag(500), []byte{1}).
		Commit(1).
		WriteDir(dir)
	tst.RequireNoError(t, err)

	m := open(t, root, memstore.New(memstore.WithAutoCreate()), checkpoint.NewMemStore())
	defer func() { _ = m.Close() }()

	assert.Equal(t, 1, len(m.Report().Failed()))

	_, err = m.Journal(bad)
	assert.True(t, errors.Is(err, manager.ErrMailboxUnrecovered))
	assert.True(t, errors.Is(err, redolog.ErrCorruptLog))

	_, err = m.Journal(mbox)
	tst.RequireNoError(t, err)
}

func TestManager_InvalidInputs(t *testing.T) {
	ctx := context.Background()

	_, err := manager.Open(ctx, "", manager.Opts{}, memstore.New(), checkpoint.NewMemStore(), nil)
	assert.True(t, errors.Is(err, manager.ErrInvalidRoot))

	m := open(t, t.TempDir(), memstore.New(), checkpoint.NewMemStore())
	_, err = m.Journal(0)
	assert.True(t, errors.Is(err, manager.ErrInvalidMailbox))

	tst.RequireNoError(t, m.Close())
	tst.AssertTrue(t, m.IsClosed(), "expected manager to be closed")
	tst.RequireNoError(t, m.Close())

	_, err = m.Journal(mbox)
	assert.True(t, errors.Is(err, manager.ErrClosed))
	assert.True(t, errors.Is(m.Rotate(mbox), manager.ErrClosed))
}

func TestManager_BatchedDurabilityWithFsyncOnCommit(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	opts := redolog.DefaultOptions()
	opts.Durability = redolog.DurabilityBatched

	m, err := manager.Open(ctx, root, manager.Opts{Options: opts, FsyncOnCommit: true}, memstore.New(memstore.WithAutoCreate()), checkpoint.NewMemStore(), nil)
	tst.RequireNoError(t, err)
	j, err := m.Journal(mbox)
	tst.RequireNoError(t, err)
	_, err = j.Run(ctx, createAndShare(ctx))
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, m.Sync())
	tst.RequireNoError(t, m.Close())

	store := memstore.New(memstore.WithAutoCreate())
	m2 := open(t, root, store, checkpoint.NewMemStore())
	defer func() { _ = m2.Close() }()
	box, _ := store.Mailbox(mbox)
	assert.Equal(t, "Work", box.Snapshot().Folders[5].Name)
}
