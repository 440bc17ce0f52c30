// Package manager owns a redo log root: one log and journal per mailbox,
// recovery on open, and checkpoint-driven segment purging.
package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/julianstephens/go-utils/helpers"
	"github.com/julianstephens/go-utils/validator"

	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/checkpoint"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/metrics"
	"github.com/julianstephens/redolog/internal/redolog/recovery"
	"github.com/julianstephens/redolog/internal/redolog/txn"
	"github.com/julianstephens/redolog/internal/redolog/wal"
)

type Opts struct {
	Options redolog.Options
	// FsyncOnCommit forces a flush and fsync after every COMMIT. Under sync
	// durability each entry is already synced; under batched durability this
	// makes commits durable without waiting for the batch.
	FsyncOnCommit bool
	Metrics       *metrics.Registry
}

type mailboxLog struct {
	log     *wal.Log
	journal *txn.Journal
}

// Manager is the entry point for writers. It is safe for concurrent use.
type Manager struct {
	root        string
	opts        Opts
	store       mailbox.Store
	checkpoints checkpoint.Store
	logger      logger.Logger

	alloc  *txn.CounterAllocator
	report *recovery.Report

	mu          sync.Mutex
	logs        map[uint64]*mailboxLog
	unrecovered map[uint64]error
	closed      bool
}

// Open recovers every mailbox found under root, then returns a Manager
// ready to hand out journals. A mailbox whose recovery fails does not fail
// Open; its journal is refused until the log is repaired and the manager
// reopened. The caller owns store, checkpoints and lg.
func Open(ctx context.Context, root string, opts Opts, store mailbox.Store, checkpoints checkpoint.Store, lg logger.Logger) (*Manager, error) {
	lg = logger.OrNoOp(lg)
	if root == "" {
		return nil, &ManagerError{Err: ErrInvalidRoot, Op: "open"}
	}
	opts.Options = opts.Options.WithDefaults()

	m := &Manager{
		root:        root,
		opts:        opts,
		store:       store,
		checkpoints: checkpoints,
		logger:      logger.With(lg, "root", root),
		logs:        make(map[uint64]*mailboxLog),
		unrecovered: make(map[uint64]error),
	}

	m.logger.Info("opening redo log root",
		"durability", string(opts.Options.Durability),
		"fsync_on_commit", opts.FsyncOnCommit,
	)

	if err := helpers.Ensure(root, true); err != nil {
		return nil, m.wrapErr("open", ErrInvalidRoot, 0, err)
	}

	alloc, err := txn.NewCounterAllocator(1)
	if err != nil {
		return nil, m.wrapErr("open", ErrInitFailed, 0, err)
	}
	m.alloc = alloc

	if err := m.recover(ctx); err != nil {
		return nil, err
	}

	m.logger.Info("redo log root opened",
		"mailboxes", len(m.report.Outcomes),
		"unrecovered", len(m.unrecovered),
		"next_txn", m.alloc.Peek(),
	)
	return m, nil
}

func (m *Manager) recover(ctx context.Context) error {
	ids, err := wal.ListMailboxes(m.root)
	if err != nil {
		return m.wrapErr("open", ErrRecoveryFailed, 0, err)
	}

	player := recovery.NewPlayer(m.store, m.checkpoints, recovery.DirSource(m.root), recovery.PlayerOpts{
		Parallelism: m.opts.Options.RecoveryParallelism,
		Metrics:     m.opts.Metrics,
	}, m.logger)

	report, err := player.RecoverAll(ctx, ids)
	if err != nil {
		return m.wrapErr("open", ErrRecoveryFailed, 0, err)
	}
	m.report = report

	for _, o := range report.Outcomes {
		if !o.OK() {
			m.unrecovered[o.MailboxID] = o.Err
			m.logger.Warn("mailbox left unrecovered", "mailbox", o.MailboxID, "reason", o.Err.Error())
			continue
		}
		if err := m.alloc.Observe(o.Result.MaxTxnID); err != nil {
			return m.wrapErr("open", ErrInitFailed, o.MailboxID, err)
		}
	}
	return nil
}

// Report returns the recovery report produced by Open.
func (m *Manager) Report() *recovery.Report {
	return m.report
}

// Root returns the log root directory.
func (m *Manager) Root() string {
	return m.root
}

// Mailboxes returns every mailbox recovered at open or opened since, in
// ascending order.
func (m *Manager) Mailboxes() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uint64
	for _, o := range m.report.Outcomes {
		ids = append(ids, o.MailboxID)
	}
	for id := range m.logs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Journal returns the journal of a mailbox, opening its log on first use.
func (m *Manager) Journal(mailboxID uint64) (*txn.Journal, error) {
	ml, err := m.mailboxLog("journal", mailboxID)
	if err != nil {
		return nil, err
	}
	return ml.journal, nil
}

func (m *Manager) mailboxLog(op string, mailboxID uint64) (*mailboxLog, error) {
	if err := validator.Numbers[uint64]().ValidateNonZero(mailboxID); err != nil {
		return nil, m.wrapErr(op, ErrInvalidMailbox, mailboxID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, m.wrapErr(op, ErrClosed, mailboxID, nil)
	}
	if cause, ok := m.unrecovered[mailboxID]; ok {
		return nil, m.wrapErr(op, ErrMailboxUnrecovered, mailboxID, cause)
	}
	if ml, ok := m.logs[mailboxID]; ok {
		return ml, nil
	}

	lg := logger.With(m.logger, "mailbox", mailboxID)
	cp, err := m.checkpoints.Read(context.Background(), mailboxID)
	if err != nil {
		lg.Error("failed to read checkpoint", err)
		return nil, m.wrapErr(op, ErrLogOpenFailed, mailboxID, err)
	}
	lopts := wal.LogOptsFrom(m.opts.Options, m.opts.Metrics)
	// Never reuse a sequence number a checkpoint may already cover.
	lopts.MinNextSeq = cp + 1
	log, err := wal.OpenLog(wal.MailboxDir(m.root, mailboxID), lopts, lg)
	if err != nil {
		lg.Error("failed to open mailbox log", err)
		return nil, m.wrapErr(op, ErrLogOpenFailed, mailboxID, err)
	}
	if log.Repaired() {
		lg.Warn("mailbox log tail repaired on open")
	}
	// Ids found in a log recovery never scanned, e.g. a log created after Open.
	if err := m.alloc.Observe(log.MaxTxnID()); err != nil {
		_ = log.Close()
		return nil, m.wrapErr(op, ErrInitFailed, mailboxID, err)
	}

	ml := &mailboxLog{
		log: log,
		journal: txn.NewJournal(mailboxID, m.alloc, log, txn.JournalOpts{
			FsyncOnCommit: m.opts.FsyncOnCommit,
			Metrics:       m.opts.Metrics,
		}, m.logger),
	}
	m.logs[mailboxID] = ml
	lg.Debug("mailbox log opened", "next_seq", log.NextSeq(), "segments", len(log.SegmentIDs()))
	return ml, nil
}

// Checkpoint records that every operation of the mailbox up to seq is
// durable in the mailbox store, then removes segments that are entirely at
// or below it. It returns the removed segment IDs.
func (m *Manager) Checkpoint(ctx context.Context, mailboxID, seq uint64) ([]uint64, error) {
	ml, err := m.mailboxLog("checkpoint", mailboxID)
	if err != nil {
		return nil, err
	}
	if last := ml.log.NextSeq() - 1; seq > last {
		return nil, m.wrapErr("checkpoint", ErrCheckpointAhead, mailboxID, fmt.Errorf("seq %d, last logged %d", seq, last))
	}

	// The checkpoint must not get ahead of the durable log.
	if err := ml.log.Sync(); err != nil {
		return nil, m.wrapErr("checkpoint", ErrCheckpointFailed, mailboxID, err)
	}
	if err := m.checkpoints.Write(ctx, mailboxID, seq); err != nil {
		return nil, m.wrapErr("checkpoint", ErrCheckpointFailed, mailboxID, err)
	}

	removed, err := ml.log.Purge(seq)
	if err != nil {
		return removed, m.wrapErr("checkpoint", ErrCheckpointFailed, mailboxID, err)
	}
	m.logger.Info("checkpoint advanced", "mailbox", mailboxID, "seq", seq, "purged", len(removed))
	return removed, nil
}

// Rotate starts a new segment for the mailbox log.
func (m *Manager) Rotate(mailboxID uint64) error {
	ml, err := m.mailboxLog("rotate", mailboxID)
	if err != nil {
		return err
	}
	if err := ml.log.Rotate(); err != nil {
		return m.wrapErr("rotate", ErrRotateFailed, mailboxID, err)
	}
	return nil
}

// Sync makes every open mailbox log durable.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return m.wrapErr("sync", ErrClosed, 0, nil)
	}
	var errs []error
	for id, ml := range m.logs {
		if err := ml.log.Sync(); err != nil {
			errs = append(errs, m.wrapErr("sync", redolog.ErrIOFailure, id, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every journal and log. Closing twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing redo log root", "open_logs", len(m.logs))

	var errs []error
	for id, ml := range m.logs {
		_ = ml.journal.Close()
		if err := ml.log.Close(); err != nil {
			m.logger.Error("failed to close mailbox log", err, "mailbox", id)
			errs = append(errs, m.wrapErr("close", ErrCloseFailed, id, err))
		}
	}
	return errors.Join(errs...)
}

// IsClosed reports whether Close has been called.
func (m *Manager) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
