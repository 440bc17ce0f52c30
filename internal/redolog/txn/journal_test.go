package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	tst "github.com/julianstephens/go-utils/tests"

	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/txn"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
	"github.com/julianstephens/redolog/internal/testutil"
)

const mbox uint64 = 42

func newJournal(t *testing.T, startTxn uint64, opts txn.JournalOpts) (*txn.Journal, *testutil.LogAppender) {
	t.Helper()
	appender := testutil.NewLogAppenderAt(101)
	return txn.NewJournal(mbox, testutil.NewIDAllocator(startTxn), appender, opts, nil), appender
}

func grant() *op.GrantAccess {
	return op.NewGrantAccess(mbox, 10, "bob", mailbox.GranteeUser, mailbox.RightRead|mailbox.RightWrite, false)
}

// TestJournalHappyPath verifies START, op, COMMIT, Flush, FSync in order
func TestJournalHappyPath(t *testing.T) {
	ctx := context.Background()
	j, appender := newJournal(t, 7, txn.JournalOpts{FsyncOnCommit: true})

	txnID, err := j.Begin(ctx)
	tst.RequireNoError(t, err)
	assert.Equal(t, uint64(7), txnID)

	g := grant()
	seq, err := j.Record(ctx, txnID, g)
	tst.RequireNoError(t, err)
	assert.Equal(t, uint64(101), seq)
	assert.Equal(t, uint64(7), g.TxnID)
	assert.Equal(t, uint64(101), g.Seq)

	tst.RequireNoError(t, j.Commit(ctx, txnID))

	assert.Equal(t, []string{"Append:START", "Append:OP", "Append:COMMIT", "Flush", "FSync"}, appender.CallSequence())

	entries := appender.Entries()
	assert.Equal(t, record.EncodeMarkerPayload(7), entries[0].Payload)
	assert.Equal(t, uint64(100), entries[0].Seq)
	assert.Equal(t, op.TagGrantAccess, entries[1].Tag)
	assert.Equal(t, uint64(101), entries[2].Seq)

	// The recorded payload decodes back to the op.
	decoded, err := op.DecodeEntry(entries[1])
	tst.RequireNoError(t, err)
	assert.Equal(t, g.PrintableData(), decoded.PrintableData())
	assert.Equal(t, 0, len(j.Active()))
}

func TestJournalWithoutFSync(t *testing.T) {
	ctx := context.Background()
	j, appender := newJournal(t, 1, txn.JournalOpts{})

	txnID, err := j.Begin(ctx)
	tst.RequireNoError(t, err)
	_, err = j.Record(ctx, txnID, op.NewSetConfig(mbox, "prefs", "{}"))
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, j.Commit(ctx, txnID))

	assert.Equal(t, []string{"Append:START", "Append:OP", "Append:COMMIT"}, appender.CallSequence())
}

// TestJournalInterleavedTransactions keeps two transactions open at once
func TestJournalInterleavedTransactions(t *testing.T) {
	ctx := context.Background()
	j, appender := newJournal(t, 1, txn.JournalOpts{})

	a, _ := j.Begin(ctx)
	b, _ := j.Begin(ctx)
	assert.Equal(t, []uint64{a, b}, j.Active())

	seqA, err := j.Record(ctx, a, op.NewRenameFolder(mbox, 5, "Inbox"))
	tst.RequireNoError(t, err)
	seqB, err := j.Record(ctx, b, op.NewDeleteFolder(mbox, 6))
	tst.RequireNoError(t, err)
	tst.AssertTrue(t, seqB == seqA+1, "expected consecutive sequence numbers, got %d and %d", seqA, seqB)

	tst.RequireNoError(t, j.Abort(ctx, b))
	tst.RequireNoError(t, j.Commit(ctx, a))

	var txns []uint64
	for _, e := range appender.Entries() {
		txns = append(txns, e.TxnID)
	}
	assert.Equal(t, []uint64{a, b, a, b, b, a}, txns)
}

func TestJournalRejectsInactiveTxn(t *testing.T) {
	ctx := context.Background()
	j, appender := newJournal(t, 1, txn.JournalOpts{})

	_, err := j.Record(ctx, 99, grant())
	assert.True(t, errors.Is(err, txn.ErrTxnNotActive))
	assert.True(t, errors.Is(j.Commit(ctx, 99), txn.ErrTxnNotActive))
	assert.True(t, errors.Is(j.Abort(ctx, 99), txn.ErrTxnNotActive))

	txnID, _ := j.Begin(ctx)
	tst.RequireNoError(t, j.Commit(ctx, txnID))
	assert.True(t, errors.Is(j.Commit(ctx, txnID), txn.ErrTxnNotActive))
	assert.True(t, errors.Is(j.Abort(ctx, txnID), txn.ErrTxnNotActive))

	// Only START and COMMIT reached the log.
	assert.Equal(t, 2, len(appender.Appends()))
}

func TestJournalRejectsForeignMailbox(t *testing.T) {
	ctx := context.Background()
	j, appender := newJournal(t, 1, txn.JournalOpts{})
	txnID, _ := j.Begin(ctx)

	_, err := j.Record(ctx, txnID, op.NewDeleteFolder(mbox+1, 6))
	var jerr *txn.JournalError
	assert.True(t, errors.As(err, &jerr))
	assert.Equal(t, txn.StageValidate, jerr.Stage)
	assert.True(t, errors.Is(err, txn.ErrMailboxMismatch))
	assert.Equal(t, 1, len(appender.Appends()))
}

func TestJournalAdoptsUnaddressedOp(t *testing.T) {
	ctx := context.Background()
	j, _ := newJournal(t, 1, txn.JournalOpts{})
	txnID, _ := j.Begin(ctx)

	o := op.NewDeleteFolder(0, 6)
	_, err := j.Record(ctx, txnID, o)
	tst.RequireNoError(t, err)
	assert.Equal(t, mbox, o.MailboxID)
}

func TestJournalEncodeFailure(t *testing.T) {
	ctx := context.Background()
	j, appender := newJournal(t, 1, txn.JournalOpts{})
	txnID, _ := j.Begin(ctx)

	bad := op.NewGrantAccess(mbox, 10, "bob", mailbox.GranteeType(200), mailbox.RightRead, false)
	_, err := j.Record(ctx, txnID, bad)
	var jerr *txn.JournalError
	assert.True(t, errors.As(err, &jerr))
	assert.Equal(t, txn.StageEncodeOp, jerr.Stage)
	assert.Equal(t, op.TagGrantAccess, jerr.Tag)
	assert.True(t, errors.Is(err, record.ErrCodecInvalid))
	assert.Equal(t, 1, len(appender.Appends()))

	// The transaction stays open after a rejected op.
	tst.RequireNoError(t, j.Commit(ctx, txnID))
}

// TestJournalFailureStages verifies which stage each injected failure reports
func TestJournalFailureStages(t *testing.T) {
	ioErr := testutil.NewIOError("disk")
	testCases := []struct {
		name      string
		setup     func(*testutil.LogAppender)
		wantStage txn.Stage
		wantErr   error
	}{
		{
			name:      "AppendStart",
			setup:     func(a *testutil.LogAppender) { a.SetFailOnAppend(0) },
			wantStage: txn.StageAppendStart,
			wantErr:   txn.ErrAppendStart,
		},
		{
			name:      "AppendOp",
			setup:     func(a *testutil.LogAppender) { a.SetFailOnAppend(1) },
			wantStage: txn.StageAppendOp,
			wantErr:   txn.ErrAppendOp,
		},
		{
			name:      "AppendCommit",
			setup:     func(a *testutil.LogAppender) { a.SetFailOnAppend(2) },
			wantStage: txn.StageAppendCommit,
			wantErr:   txn.ErrAppendCommit,
		},
		{
			name:      "Flush",
			setup:     func(a *testutil.LogAppender) { a.SetFailOnFlush(true) },
			wantStage: txn.StageFlush,
			wantErr:   txn.ErrFlush,
		},
		{
			name:      "FSync",
			setup:     func(a *testutil.LogAppender) { a.SetFailOnFSync(true) },
			wantStage: txn.StageFSync,
			wantErr:   txn.ErrFSync,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			j, appender := newJournal(t, 1, txn.JournalOpts{FsyncOnCommit: true})
			appender.SetFailErr(ioErr)
			tc.setup(appender)

			_, err := j.Run(ctx, func(tx *txn.Tx) error {
				_, err := tx.Record(ctx, grant())
				return err
			})

			var jerr *txn.JournalError
			if !errors.As(err, &jerr) {
				t.Fatalf("expected *JournalError, got %T: %v", err, err)
			}
			assert.Equal(t, tc.wantStage, jerr.Stage)
			assert.True(t, errors.Is(err, tc.wantErr))
			assert.True(t, errors.Is(err, redolog.ErrIOFailure), "I/O failures must surface as ErrIOFailure")
			assert.Equal(t, 0, len(j.Active()))
		})
	}
}

func TestJournalRunAbortsOnError(t *testing.T) {
	ctx := context.Background()
	j, appender := newJournal(t, 3, txn.JournalOpts{})
	boom := errors.New("boom")

	txnID, err := j.Run(ctx, func(tx *txn.Tx) error {
		if _, err := tx.Record(ctx, grant()); err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, uint64(3), txnID)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []string{"Append:START", "Append:OP", "Append:ABORT"}, appender.CallSequence())
}

func TestJournalRunCommits(t *testing.T) {
	ctx := context.Background()
	j, appender := newJournal(t, 3, txn.JournalOpts{})

	_, err := j.Run(ctx, func(tx *txn.Tx) error {
		_, err := tx.Record(ctx, op.NewMoveItem(mbox, []int32{300, 301}, mailbox.ItemMessage, 2))
		return err
	})
	tst.RequireNoError(t, err)
	assert.Equal(t, []string{"Append:START", "Append:OP", "Append:COMMIT"}, appender.CallSequence())
}

func TestJournalCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j, appender := newJournal(t, 1, txn.JournalOpts{})

	_, err := j.Begin(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, len(appender.Calls()))
}

func TestJournalClose(t *testing.T) {
	ctx := context.Background()
	j, _ := newJournal(t, 1, txn.JournalOpts{})
	txnID, _ := j.Begin(ctx)

	tst.RequireNoError(t, j.Close())
	tst.RequireNoError(t, j.Close())

	_, err := j.Begin(ctx)
	assert.True(t, errors.Is(err, txn.ErrJournalClosed))
	assert.True(t, errors.Is(j.Commit(ctx, txnID), txn.ErrJournalClosed))
}

func TestJournalAllocFailure(t *testing.T) {
	ctx := context.Background()
	ids := testutil.NewIDAllocator(1)
	ids.FailNext = txn.ErrTxnIDOverflow
	appender := testutil.NewLogAppender()
	j := txn.NewJournal(mbox, ids, appender, txn.JournalOpts{}, nil)

	_, err := j.Begin(ctx)
	var jerr *txn.JournalError
	assert.True(t, errors.As(err, &jerr))
	assert.Equal(t, txn.StageAllocTxnID, jerr.Stage)
	assert.True(t, errors.Is(err, txn.ErrTxnIDOverflow))
	assert.Equal(t, 0, len(appender.Calls()))
}
