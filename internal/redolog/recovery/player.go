package recovery

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/julianstephens/go-utils/generic"
	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/checkpoint"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/metrics"
	"github.com/julianstephens/redolog/internal/redolog/wal"
)

// SourceFunc returns the segments of one mailbox log.
type SourceFunc func(mailboxID uint64) (wal.SegmentProvider, error)

// DirSource reads mailbox logs from their directories under root.
func DirSource(root string) SourceFunc {
	return func(mailboxID uint64) (wal.SegmentProvider, error) {
		return wal.NewDirProvider(wal.MailboxDir(root, mailboxID))
	}
}

type PlayerOpts struct {
	// Parallelism bounds how many mailboxes are replayed at once. Each
	// mailbox is always replayed by a single goroutine.
	Parallelism int
	// DryRun replays without advancing checkpoints.
	DryRun  bool
	Metrics *metrics.Registry
}

// Player recovers mailboxes: it reads each checkpoint, replays the log
// above it and advances the checkpoint to the sequence number reached.
type Player struct {
	store       mailbox.Store
	checkpoints checkpoint.Store
	source      SourceFunc
	opts        PlayerOpts
	logger      logger.Logger
}

func NewPlayer(store mailbox.Store, checkpoints checkpoint.Store, source SourceFunc, opts PlayerOpts, lg logger.Logger) *Player {
	if opts.Parallelism <= 0 {
		opts.Parallelism = redolog.DefaultRecoveryParallelism
	}
	return &Player{
		store:       store,
		checkpoints: checkpoints,
		source:      source,
		opts:        opts,
		logger:      logger.OrNoOp(lg),
	}
}

// MailboxOutcome is the result of recovering one mailbox. Err is a
// *MailboxRecoveryError when recovery failed; Result is still set as far as
// replay got.
type MailboxOutcome struct {
	MailboxID uint64
	Result    *Result
	Err       error
}

func (o MailboxOutcome) OK() bool { return o.Err == nil }

// Report aggregates the outcomes of one RecoverAll run.
type Report struct {
	RunID    uuid.UUID
	Started  time.Time
	Duration time.Duration
	DryRun   bool
	// Outcomes are ordered by mailbox ID.
	Outcomes []MailboxOutcome
}

// Failed returns the outcomes of mailboxes that could not be recovered.
func (r *Report) Failed() []MailboxOutcome {
	var out []MailboxOutcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the per-mailbox failures, or returns nil when every mailbox recovered.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// Outcome returns the outcome for one mailbox.
func (r *Report) Outcome(mailboxID uint64) (MailboxOutcome, bool) {
	i, ok := slices.BinarySearchFunc(r.Outcomes, mailboxID, func(o MailboxOutcome, id uint64) int {
		switch {
		case o.MailboxID < id:
			return -1
		case o.MailboxID > id:
			return 1
		}
		return 0
	})
	if !ok {
		return MailboxOutcome{}, false
	}
	return r.Outcomes[i], true
}

// RecoverAll recovers the given mailboxes concurrently. A failing mailbox
// never stops the others; every failure is recorded in the report. The
// returned error is only set when ctx ends before all mailboxes ran.
func (p *Player) RecoverAll(ctx context.Context, mailboxIDs []uint64) (*Report, error) {
	ids := slices.Clone(mailboxIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	report := &Report{
		RunID:    uuid.New(),
		Started:  time.Now(),
		DryRun:   p.opts.DryRun,
		Outcomes: make([]MailboxOutcome, len(ids)),
	}
	lg := logger.With(p.logger, "run", report.RunID.String())
	lg.Info("recovery started", "mailboxes", len(ids), "parallelism", p.opts.Parallelism, "dry_run", p.opts.DryRun)

	// A plain Group: one mailbox's error must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(p.opts.Parallelism)
	for i, id := range ids {
		if ctx.Err() != nil {
			report.Outcomes[i] = MailboxOutcome{MailboxID: id, Err: &MailboxRecoveryError{MailboxID: id, Err: ctx.Err()}}
			continue
		}
		g.Go(func() error {
			res, err := p.recover(ctx, id, lg)
			report.Outcomes[i] = MailboxOutcome{MailboxID: id, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(report.Started)
	failed := len(report.Failed())
	lg.Info("recovery finished",
		"mailboxes", len(ids),
		"failed", failed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, ctx.Err()
}

// Recover recovers a single mailbox.
func (p *Player) Recover(ctx context.Context, mailboxID uint64) (*Result, error) {
	return p.recover(ctx, mailboxID, p.logger)
}

func (p *Player) recover(ctx context.Context, mailboxID uint64, lg logger.Logger) (*Result, error) {
	mlg := logger.With(lg, "mailbox", mailboxID)
	fail := func(res *Result, cp uint64, err error) (*Result, error) {
		reached := cp
		if res != nil {
			reached = res.ReachedSeq
			p.opts.Metrics.RecordRecovery(false, res.Applied, res.Skipped, res.DiscardedTxns, res.Duration)
		} else {
			p.opts.Metrics.RecordRecovery(false, 0, 0, 0, 0)
		}
		mlg.Error("mailbox recovery failed", err, "checkpoint", cp, "reached_seq", reached)
		return res, &MailboxRecoveryError{MailboxID: mailboxID, Checkpoint: cp, ReachedSeq: reached, Err: err}
	}

	cp, err := p.checkpoints.Read(ctx, mailboxID)
	if err != nil {
		return fail(nil, 0, err)
	}

	src, err := p.source(mailboxID)
	if err != nil {
		return fail(nil, cp, err)
	}

	res, err := Replay(ctx, src, cp, p.store, ReplayOpts{MailboxID: mailboxID, Logger: lg})
	if err != nil {
		return fail(res, cp, err)
	}

	if !p.opts.DryRun && res.ReachedSeq > cp {
		if err := p.checkpoints.Write(ctx, mailboxID, res.ReachedSeq); err != nil {
			return fail(res, cp, err)
		}
	}
	p.opts.Metrics.RecordRecovery(true, res.Applied, res.Skipped, res.DiscardedTxns, res.Duration)
	mlg.Info("mailbox recovered",
		"checkpoint", cp,
		"reached_seq", res.ReachedSeq,
		"checkpoint_advanced", generic.If(!p.opts.DryRun && res.ReachedSeq > cp, "yes", "no"),
	)
	return res, nil
}
