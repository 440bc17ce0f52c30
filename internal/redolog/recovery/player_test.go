package recovery_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/google/uuid"
	tst "github.com/julianstephens/go-utils/tests"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/checkpoint"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/metrics"
	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/recovery"
	"github.com/julianstephens/redolog/internal/redolog/wal"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
	"github.com/julianstephens/redolog/internal/testutil"
)

func mapSource(t *testing.T, seqs map[uint64]*testutil.Sequence) recovery.SourceFunc {
	t.Helper()
	providers := make(map[uint64]*testutil.SegmentProvider, len(seqs))
	for id, s := range seqs {
		providers[id] = provider(t, s)
	}
	return func(mailboxID uint64) (wal.SegmentProvider, error) {
		p, ok := providers[mailboxID]
		if !ok {
			return nil, fmt.Errorf("no log for mailbox %d", mailboxID)
		}
		return p, nil
	}
}

// TestPlayer_UnknownTagIsolated recovers a healthy mailbox next to one whose
// log holds an unregistered tag.
func TestPlayer_UnknownTagIsolated(t *testing.T) {
	ctx := context.Background()
	const bad uint64 = 43

	source := mapSource(t, map[uint64]*testutil.Sequence{
		mbox: testutil.NewSequence().StartingAt(101).Txn(7, grantBob()),
		bad: testutil.NewSequence().
			Start(1).
			Raw(1, record.Tag(500), []byte{0xde, 0xad}).
			Commit(1),
	})
	cps := checkpoint.NewMemStore()
	tst.RequireNoError(t, cps.Write(ctx, mbox, 100))
	store := testutil.NewRecordingStore()
	reg := metrics.NewRegistry()

	player := recovery.NewPlayer(store, cps, source, recovery.PlayerOpts{Parallelism: 2, Metrics: reg}, nil)
	report, err := player.RecoverAll(ctx, []uint64{bad, mbox})
	tst.RequireNoError(t, err)

	tst.AssertTrue(t, report.RunID != uuid.Nil, "expected a run id")
	assert.Equal(t, 2, len(report.Outcomes))
	assert.Equal(t, mbox, report.Outcomes[0].MailboxID)

	good, ok := report.Outcome(mbox)
	assert.True(t, ok)
	assert.True(t, good.OK())
	assert.Equal(t, uint64(101), good.Result.ReachedSeq)
	assert.Equal(t, []string{"GrantAccess 10 bob usr rw false"}, calls(t, store))

	failed, ok := report.Outcome(bad)
	assert.True(t, ok)
	assert.False(t, failed.OK())
	assert.True(t, errors.Is(failed.Err, redolog.ErrCorruptLog))
	var mre *recovery.MailboxRecoveryError
	assert.True(t, errors.As(failed.Err, &mre))
	assert.Equal(t, bad, mre.MailboxID)

	assert.Equal(t, 1, len(report.Failed()))
	assert.True(t, errors.Is(report.Err(), redolog.ErrCorruptLog))

	// Checkpoints: advanced for the healthy mailbox, untouched for the other.
	cp, err := cps.Read(ctx, mbox)
	tst.RequireNoError(t, err)
	assert.Equal(t, uint64(101), cp)
	cp, err = cps.Read(ctx, bad)
	tst.RequireNoError(t, err)
	assert.Equal(t, uint64(0), cp)

	assert.Equal(t, 1.0, promtest.ToFloat64(reg.RecoveryMailboxesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.RecoveryMailboxesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.RecoveryOpsApplied))
}

func TestPlayer_DryRunLeavesCheckpoint(t *testing.T) {
	ctx := context.Background()
	source := mapSource(t, map[uint64]*testutil.Sequence{
		mbox: testutil.NewSequence().Txn(1, grantBob()),
	})
	cps := checkpoint.NewMemStore()

	player := recovery.NewPlayer(testutil.NewRecordingStore(), cps, source, recovery.PlayerOpts{DryRun: true}, nil)
	report, err := player.RecoverAll(ctx, []uint64{mbox})
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, report.Err())
	assert.True(t, report.DryRun)

	cp, _ := cps.Read(ctx, mbox)
	assert.Equal(t, uint64(0), cp)
}

func TestPlayer_SecondRunIsNoop(t *testing.T) {
	ctx := context.Background()
	source := mapSource(t, map[uint64]*testutil.Sequence{
		mbox: testutil.NewSequence().Txn(1, grantBob(), op.NewRevokeAccess(mbox, 10, "eve")),
	})
	cps := checkpoint.NewMemStore()
	store := testutil.NewRecordingStore()
	player := recovery.NewPlayer(store, cps, source, recovery.PlayerOpts{}, nil)

	res, err := player.Recover(ctx, mbox)
	tst.RequireNoError(t, err)
	assert.Equal(t, 2, res.Applied)

	res, err = player.Recover(ctx, mbox)
	tst.RequireNoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, len(calls(t, store)))
}

func TestPlayer_MissingMailboxIsolated(t *testing.T) {
	ctx := context.Background()
	const gone uint64 = 77
	source := mapSource(t, map[uint64]*testutil.Sequence{
		mbox: testutil.NewSequence().Txn(1, grantBob()),
		gone: testutil.NewSequence().Txn(1, op.NewRenameFolder(gone, 5, "x")),
	})
	store := testutil.NewRecordingStore()
	store.Missing[gone] = true

	player := recovery.NewPlayer(store, checkpoint.NewMemStore(), source, recovery.PlayerOpts{}, nil)
	report, err := player.RecoverAll(ctx, []uint64{mbox, gone})
	tst.RequireNoError(t, err)

	o, _ := report.Outcome(gone)
	assert.True(t, errors.Is(o.Err, redolog.ErrNotFound))
	o, _ = report.Outcome(mbox)
	assert.True(t, o.OK())
}

func TestPlayer_CheckpointReadFailure(t *testing.T) {
	ctx := context.Background()
	source := mapSource(t, map[uint64]*testutil.Sequence{mbox: testutil.NewSequence().Txn(1, grantBob())})
	cps := checkpoint.NewMemStore()
	tst.RequireNoError(t, cps.Close())

	player := recovery.NewPlayer(testutil.NewRecordingStore(), cps, source, recovery.PlayerOpts{}, nil)
	_, err := player.Recover(ctx, mbox)
	assert.True(t, errors.Is(err, checkpoint.ErrClosed))
}

// TestPlayer_ManyMailboxes runs more mailboxes than workers.
func TestPlayer_ManyMailboxes(t *testing.T) {
	ctx := context.Background()
	seqs := make(map[uint64]*testutil.Sequence)
	var ids []uint64
	for id := uint64(1); id <= 20; id++ {
		seqs[id] = testutil.NewSequence().Txn(id, op.NewSetConfig(id, "k", fmt.Sprint(id)))
		ids = append(ids, id)
	}
	cps := checkpoint.NewMemStore()
	player := recovery.NewPlayer(testutil.NewRecordingStore(), cps, mapSource(t, seqs), recovery.PlayerOpts{Parallelism: 3}, nil)

	report, err := player.RecoverAll(ctx, ids)
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, report.Err())
	for _, id := range ids {
		cp, _ := cps.Read(ctx, id)
		assert.Equal(t, uint64(1), cp)
	}
}

// TestPlayer_DirSource recovers from segment files on disk into a file
// checkpoint store.
func TestPlayer_DirSource(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir := wal.MailboxDir(root, mbox)
	tst.RequireNoError(t, os.MkdirAll(dir, 0o750))

	seq := testutil.NewSequence().
		Txn(1, op.NewCreateFolder(mbox, 1, 5, "Work", mailbox.ItemMessage)).
		Rotate().
		Txn(2, grantBob())
	_, err := seq.WriteDir(dir)
	tst.RequireNoError(t, err)

	ids, err := wal.ListMailboxes(root)
	tst.RequireNoError(t, err)
	assert.Equal(t, []uint64{mbox}, ids)

	cps, err := checkpoint.OpenFileStore(root)
	tst.RequireNoError(t, err)
	defer func() { _ = cps.Close() }()

	store := testutil.NewRecordingStore()
	player := recovery.NewPlayer(store, cps, recovery.DirSource(root), recovery.PlayerOpts{}, nil)
	report, err := player.RecoverAll(ctx, ids)
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, report.Err())

	assert.Equal(t, []string{
		"CreateFolder 1 5 Work message 0 0",
		"GrantAccess 10 bob usr rw false",
	}, calls(t, store))
	cp, _ := cps.Read(ctx, mbox)
	assert.Equal(t, uint64(2), cp)
}
