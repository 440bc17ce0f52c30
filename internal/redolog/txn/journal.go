package txn

import (
	"context"
	"sort"
	"sync"

	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog/metrics"
	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/wal"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

type JournalOpts struct {
	// FsyncOnCommit flushes and fsyncs the log before Commit returns. Leave it
	// off when the appender already applies a batched durability policy.
	FsyncOnCommit bool
	Metrics       *metrics.Registry
}

// Journal writes the transactions of one mailbox to its log. Several
// transactions may be open at once; their entries interleave in the log in
// the order the calls are made.
type Journal struct {
	mailboxID   uint64
	idAllocator IDAllocator
	logAppender wal.Appender
	logger      logger.Logger
	opts        JournalOpts

	mu     sync.Mutex
	active map[uint64]int // txn id -> ops recorded
	closed bool
}

// NewJournal creates a Journal for mailboxID writing to the given Appender.
func NewJournal(mailboxID uint64, allocator IDAllocator, logAppender wal.Appender, opts JournalOpts, lg logger.Logger) *Journal {
	return &Journal{
		mailboxID:   mailboxID,
		idAllocator: allocator,
		logAppender: logAppender,
		logger:      logger.With(logger.OrNoOp(lg), "mailbox", mailboxID),
		opts:        opts,
		active:      make(map[uint64]int),
	}
}

func (j *Journal) MailboxID() uint64 { return j.mailboxID }

// Begin allocates a txn ID and writes its START marker.
func (j *Journal) Begin(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, j.wrapErr(StageValidate, ErrJournalClosed, 0, nil)
	}

	txnID, err := j.idAllocator.Next()
	if err != nil {
		j.logger.Error("failed to allocate txn id", err)
		return 0, j.wrapErr(StageAllocTxnID, ErrInvalidTxnID, 0, err)
	}

	if _, err := j.logAppender.Append(record.TagStart, txnID, record.EncodeMarkerPayload(txnID)); err != nil {
		j.logger.Error("failed to append START marker", err, "txn", txnID)
		return 0, j.wrapErr(StageAppendStart, ErrAppendStart, txnID, err)
	}

	j.active[txnID] = 0
	j.logger.Debug("txn started", "txn", txnID)
	return txnID, nil
}

// Record appends o to the open transaction txnID and returns the sequence
// number the log assigned to it. The op's header is stamped with the txn ID
// and sequence number. An op with no mailbox is adopted by this journal.
func (j *Journal) Record(ctx context.Context, txnID uint64, o op.Op) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if o == nil {
		return 0, j.wrapErr(StageValidate, ErrNilOp, txnID, nil)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkActiveLocked(txnID); err != nil {
		return 0, err
	}

	m := o.Meta()
	if m.MailboxID == 0 {
		m.MailboxID = j.mailboxID
	}
	if m.MailboxID != j.mailboxID {
		j.logger.Warn("op addressed to another mailbox", "txn", txnID, "tag", op.Name(o.Tag()), "op_mailbox", m.MailboxID)
		return 0, j.wrapOpErr(StageValidate, ErrMailboxMismatch, txnID, o.Tag(), nil)
	}

	payload, err := op.Encode(o)
	if err != nil {
		j.logger.Error("failed to encode op", err, "txn", txnID, "tag", op.Name(o.Tag()))
		return 0, j.wrapOpErr(StageEncodeOp, ErrEncodeOp, txnID, o.Tag(), err)
	}

	seq, err := j.logAppender.Append(o.Tag(), txnID, payload)
	if err != nil {
		j.logger.Error("failed to append op", err, "txn", txnID, "tag", op.Name(o.Tag()))
		return 0, j.wrapOpErr(StageAppendOp, ErrAppendOp, txnID, o.Tag(), err)
	}

	m.TxnID = txnID
	m.Seq = seq
	j.active[txnID]++
	j.logger.Debug("op recorded", "txn", txnID, "seq", seq, "tag", op.Name(o.Tag()), "payload_size", len(payload))
	return seq, nil
}

// Commit writes the COMMIT marker for txnID. With FsyncOnCommit the log is
// flushed and fsynced before Commit returns. The transaction is finished
// whether or not the marker could be written; a failed commit leaves it
// unterminated in the log and replay discards it.
func (j *Journal) Commit(ctx context.Context, txnID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkActiveLocked(txnID); err != nil {
		return err
	}
	count := j.active[txnID]
	delete(j.active, txnID)

	if _, err := j.logAppender.Append(record.TagCommit, txnID, record.EncodeMarkerPayload(txnID)); err != nil {
		j.logger.Error("failed to append COMMIT marker", err, "txn", txnID)
		j.opts.Metrics.RecordTxn("failed")
		return j.wrapErr(StageAppendCommit, ErrAppendCommit, txnID, err)
	}

	if j.opts.FsyncOnCommit {
		if err := j.logAppender.Flush(); err != nil {
			j.logger.Error("failed to flush log", err, "txn", txnID)
			j.opts.Metrics.RecordTxn("failed")
			return j.wrapErr(StageFlush, ErrFlush, txnID, err)
		}
		if err := j.logAppender.FSync(); err != nil {
			j.logger.Error("failed to fsync log", err, "txn", txnID)
			j.opts.Metrics.RecordTxn("failed")
			return j.wrapErr(StageFSync, ErrFSync, txnID, err)
		}
	}

	j.opts.Metrics.RecordTxn("commit")
	j.logger.Info("commit successful", "txn", txnID, "count", count)
	return nil
}

// Abort writes the ABORT marker for txnID. Replay discards every op the
// transaction recorded.
func (j *Journal) Abort(ctx context.Context, txnID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkActiveLocked(txnID); err != nil {
		return err
	}
	count := j.active[txnID]
	delete(j.active, txnID)

	if _, err := j.logAppender.Append(record.TagAbort, txnID, record.EncodeMarkerPayload(txnID)); err != nil {
		j.logger.Error("failed to append ABORT marker", err, "txn", txnID)
		j.opts.Metrics.RecordTxn("failed")
		return j.wrapErr(StageAppendAbort, ErrAppendAbort, txnID, err)
	}

	j.opts.Metrics.RecordTxn("abort")
	j.logger.Info("txn aborted", "txn", txnID, "count", count)
	return nil
}

// Run begins a transaction, calls fn with it, and commits when fn returns
// nil. Any error from fn aborts the transaction and is returned unchanged.
func (j *Journal) Run(ctx context.Context, fn func(tx *Tx) error) (uint64, error) {
	txnID, err := j.Begin(ctx)
	if err != nil {
		return 0, err
	}

	tx := &Tx{j: j, id: txnID}
	if err := fn(tx); err != nil {
		// The original failure matters more than a failed ABORT.
		if abortErr := j.Abort(context.WithoutCancel(ctx), txnID); abortErr != nil {
			j.logger.Warn("abort after failed txn body did not complete", "txn", txnID, "reason", abortErr.Error())
		}
		return txnID, err
	}
	return txnID, j.Commit(ctx, txnID)
}

// Active returns the IDs of the open transactions in ascending order.
func (j *Journal) Active() []uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	ids := make([]uint64, 0, len(j.active))
	for id := range j.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// Close rejects further calls. Open transactions are left unterminated.
// The underlying appender is not closed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if n := len(j.active); n > 0 {
		j.logger.Warn("journal closed with open transactions", "open", n)
	}
	return nil
}

func (j *Journal) checkActiveLocked(txnID uint64) error {
	if j.closed {
		return j.wrapErr(StageValidate, ErrJournalClosed, txnID, nil)
	}
	if _, ok := j.active[txnID]; !ok {
		return j.wrapErr(StageValidate, ErrTxnNotActive, txnID, nil)
	}
	return nil
}

// Tx is an open transaction handed to the function passed to Journal.Run.
type Tx struct {
	j  *Journal
	id uint64
}

func (tx *Tx) ID() uint64 { return tx.id }

// Record appends o to the transaction.
func (tx *Tx) Record(ctx context.Context, o op.Op) (uint64, error) {
	return tx.j.Record(ctx, tx.id, o)
}
