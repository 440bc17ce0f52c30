// Package recovery replays mailbox redo logs against the mailbox store.
package recovery

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/julianstephens/go-utils/validator"

	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog/errorutil"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/wal"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// Result describes one mailbox replay. It is filled in as far as replay
// got, also when an error is returned.
type Result struct {
	MailboxID  uint64
	Checkpoint uint64
	// ReachedSeq is the highest sequence number applied, or Checkpoint when
	// nothing was applied. The checkpoint may be advanced to it.
	ReachedSeq uint64
	// LastSeq is the highest operation sequence number scanned.
	LastSeq  uint64
	MaxTxnID uint64

	Applied       int
	Skipped       int // operations at or below the checkpoint
	CommittedTxns int
	DiscardedTxns int

	SegmentsScanned int
	SegmentsSkipped int

	TailStatus wal.TailStatus
	Duration   time.Duration
}

type ReplayOpts struct {
	MailboxID uint64
	Logger    logger.Logger
}

// Replay re-applies every committed operation above checkpoint from the
// segments of one mailbox log, in sequence order. Segments whose
// operations all lie at or below the checkpoint are not opened. A partial
// final frame ends the log cleanly; any other decode failure, an unknown
// tag, or a failed redo stops replay and is returned.
func Replay(ctx context.Context, p wal.SegmentProvider, checkpoint uint64, store mailbox.Store, opts ReplayOpts) (*Result, error) {
	started := time.Now()
	lg := logger.With(logger.OrNoOp(opts.Logger), "mailbox", opts.MailboxID)
	mboxID := opts.MailboxID

	r := &replayer{
		ctx:     ctx,
		lg:      lg,
		tracker: NewTxnTracker(),
		result: &Result{
			MailboxID:  mboxID,
			Checkpoint: checkpoint,
			ReachedSeq: checkpoint,
			TailStatus: wal.TailValid,
		},
	}
	defer func() { r.result.Duration = time.Since(started) }()

	ids := p.SegmentIDs()
	if err := validateSegments(ids); err != nil {
		lg.Error("segment validation failed", err)
		r.result.TailStatus = wal.TailCorrupt
		return r.result, &ReplaySourceError{
			Kind:        ReplaySourceSegmentOrder,
			Coordinates: &errorutil.Coordinates{Mailbox: &mboxID},
			Cause:       err,
			Err:         ErrSegmentOrder,
		}
	}
	if len(ids) == 0 {
		lg.Info("no segments to replay")
		r.result.TailStatus = wal.TailMissing
		return r.result, nil
	}

	h, err := store.Lookup(ctx, mboxID)
	if err != nil {
		lg.Error("mailbox lookup failed", err)
		return r.result, &ReplaySourceError{
			Kind:        ReplaySourceMailbox,
			Coordinates: &errorutil.Coordinates{Mailbox: &mboxID},
			Cause:       err,
			Err:         ErrMailboxLookup,
		}
	}
	r.handle = h

	start := firstSegment(ids, checkpoint)
	r.result.SegmentsSkipped = start
	lg.Info("starting replay", "checkpoint", checkpoint, "start_seg", ids[start], "total_segs", len(ids), "skipped_segs", start)

	for i := start; i < len(ids); i++ {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		done, err := r.replaySegment(p, ids[i], i == len(ids)-1)
		if err != nil {
			return r.result, err
		}
		if done {
			break
		}
	}

	released, dropped := r.tracker.Finish()
	if len(dropped) > 0 {
		lg.Info("discarding unterminated transactions", "count", len(dropped), "first_txn", dropped[0])
	}
	if err := r.apply(released); err != nil {
		return r.result, err
	}
	r.result.CommittedTxns = r.tracker.Committed()
	r.result.DiscardedTxns = r.tracker.Discarded()

	lg.Info(
		"replay complete",
		"reached_seq", r.result.ReachedSeq,
		"last_seq", r.result.LastSeq,
		"applied", r.result.Applied,
		"skipped", r.result.Skipped,
		"discarded_txns", r.result.DiscardedTxns,
		"tail", r.result.TailStatus.String(),
	)
	return r.result, nil
}

type replayer struct {
	ctx     context.Context
	lg      logger.Logger
	handle  mailbox.Handle
	tracker *TxnTracker
	result  *Result

	// nextSeq is the sequence number the next operation must carry, 0 until
	// the first replayed segment header sets it.
	nextSeq uint64
}

// replaySegment scans one segment. It reports done when the log ended
// early at a torn final frame or header.
func (r *replayer) replaySegment(p wal.SegmentProvider, segID uint64, last bool) (done bool, err error) {
	mboxID := r.result.MailboxID
	r.lg.Debug("processing segment", "seg", segID, "last", last)

	sr, err := p.OpenSegment(segID)
	if err != nil {
		if last && errors.Is(err, record.ErrHeaderTruncated) {
			// Crash while a new segment was being created.
			r.lg.Warn("final segment header is torn; treating as end of log", "seg", segID, "reason", "torn_header")
			r.result.TailStatus = wal.TailTruncated
			return true, nil
		}
		r.lg.Warn("failed to open segment", "seg", segID, "reason", "open_error")
		r.result.TailStatus = wal.TailCorrupt
		return false, &ReplaySourceError{
			Kind:        ReplaySourceSegmentOpen,
			Coordinates: &errorutil.Coordinates{Mailbox: &mboxID, SegId: &segID},
			Cause:       err,
			Err:         ErrSegmentOpen,
		}
	}
	defer func() {
		if closeErr := sr.Close(); closeErr != nil {
			r.lg.Error("failed to close segment", closeErr, "seg", segID)
		}
	}()

	hdr := sr.Header()
	if hdr.StartSeq > segID || (r.nextSeq != 0 && !r.continues(hdr.StartSeq)) {
		r.result.TailStatus = wal.TailCorrupt
		return false, &ReplaySourceError{
			Kind:        ReplaySourceSequenceGap,
			Coordinates: &errorutil.Coordinates{Mailbox: &mboxID, SegId: &segID, Seq: &hdr.StartSeq},
			Err:         ErrSequenceGap,
		}
	}
	r.nextSeq = hdr.StartSeq
	r.result.SegmentsScanned++

	fr := record.NewFrameReader(sr.Reader(), record.SegmentHeaderSize)
	frames := 0
	for {
		fe, err := fr.Next()
		if err != nil {
			if err == io.EOF {
				r.lg.Debug("segment read complete", "seg", segID, "frames_processed", frames)
				return false, nil
			}
			at, declared, tag := fr.Offset(), uint32(0), record.TagInvalid
			if pe, ok := record.AsParseError(err); ok {
				at, declared, tag = pe.Offset, pe.DeclaredLen, pe.Tag
			}
			if record.IsTruncation(err) && last {
				r.lg.Warn("final frame is torn; treating as end of log",
					"seg", segID,
					"offset", at,
					"frames_processed", frames,
					"reason", "truncation",
				)
				r.result.TailStatus = wal.TailTruncated
				return true, nil
			}
			r.result.TailStatus = wal.TailCorrupt
			return false, &ReplayDecodeError{
				Coordinates: &errorutil.Coordinates{Mailbox: &mboxID, SegId: &segID, Offset: &at},
				SafeOffset:  at,
				DeclaredLen: declared,
				Tag:         tag,
				Err:         err,
			}
		}

		if err := r.replayOne(fe, segID, hdr); err != nil {
			r.result.TailStatus = wal.TailCorrupt
			return false, err
		}
		frames++
	}
}

// continues reports whether a segment starting at startSeq may follow the
// segments read so far. A log reopened below its checkpoint resumes at
// checkpoint+1, so a forward jump is allowed when every skipped number is at
// or below the checkpoint.
func (r *replayer) continues(startSeq uint64) bool {
	if startSeq == r.nextSeq {
		return true
	}
	return startSeq > r.nextSeq && startSeq-1 <= r.result.Checkpoint
}

func (r *replayer) replayOne(fe record.FramedEntry, segID uint64, hdr record.SegmentHeader) error {
	e := fe.Entry
	mboxID := r.result.MailboxID
	coords := func() *errorutil.Coordinates {
		return &errorutil.Coordinates{
			Mailbox: &mboxID,
			SegId:   &segID,
			Offset:  errorutil.Ptr(fe.Offset),
			TxnID:   errorutil.Ptr(e.TxnID),
			Seq:     errorutil.Ptr(e.Seq),
		}
	}
	r.result.MaxTxnID = max(r.result.MaxTxnID, e.TxnID)

	switch e.Tag {
	case record.TagStart:
		if err := r.tracker.Start(e.TxnID); err != nil {
			return &ReplayLogicError{Coordinates: coords(), Tag: e.Tag, Err: err}
		}
		return nil
	case record.TagCommit:
		return r.apply(r.tracker.Commit(e.TxnID))
	case record.TagAbort:
		r.lg.Debug("txn aborted", "txn", e.TxnID)
		return r.apply(r.tracker.Abort(e.TxnID))
	}

	if e.Seq != r.nextSeq {
		return &ReplayLogicError{Coordinates: coords(), Tag: e.Tag, Err: ErrSequenceGap}
	}
	r.nextSeq++
	r.result.LastSeq = e.Seq

	if e.Seq <= r.result.Checkpoint {
		r.tracker.Touch(e.TxnID)
		r.result.Skipped++
		return nil
	}

	payload, err := record.DecompressPayload(hdr.Flags, e.Tag, e.Payload)
	if err != nil {
		return &ReplayDecodeError{Coordinates: coords(), SafeOffset: fe.Offset, DeclaredLen: e.Len, Tag: e.Tag, Err: err}
	}
	o, err := op.Decode(e.Tag, e.TxnID, e.Seq, payload)
	if err != nil {
		r.lg.Error("failed to decode op", err, "seg", segID, "offset", fe.Offset, "tag", op.Name(e.Tag))
		return &ReplayDecodeError{Coordinates: coords(), SafeOffset: fe.Offset, DeclaredLen: e.Len, Tag: e.Tag, Err: err}
	}
	if o.Meta().MailboxID != mboxID {
		return &ReplayLogicError{Coordinates: coords(), Tag: e.Tag, Err: ErrWrongMailbox}
	}
	r.tracker.Add(o)
	return nil
}

// apply runs the redo action of each released operation in order.
func (r *replayer) apply(ops []op.Op) error {
	for _, o := range ops {
		m := o.Meta()
		if m.Seq <= r.result.Checkpoint {
			r.result.Skipped++
			continue
		}
		if err := op.Apply(r.ctx, o, r.handle); err != nil {
			mboxID := r.result.MailboxID
			r.lg.Error("redo failed", err, "seq", m.Seq, "txn", m.TxnID, "tag", op.Name(o.Tag()))
			return &ReplayApplyError{
				Coordinates: &errorutil.Coordinates{Mailbox: &mboxID, TxnID: &m.TxnID, Seq: &m.Seq},
				Tag:         o.Tag(),
				Err:         err,
			}
		}
		r.result.Applied++
		r.result.ReachedSeq = max(r.result.ReachedSeq, m.Seq)
	}
	return nil
}

// firstSegment returns the index of the first segment that may hold an
// operation above checkpoint. Segment i holds only sequence numbers below
// the ID of segment i+1.
func firstSegment(ids []uint64, checkpoint uint64) int {
	start := 0
	for i := 0; i+1 < len(ids); i++ {
		if ids[i+1]-1 > checkpoint {
			break
		}
		start = i + 1
	}
	return start
}

// validateSegments checks that segment IDs are non-zero and strictly increasing.
func validateSegments(ids []uint64) error {
	v := validator.Numbers[uint64]()

	for i, id := range ids {
		if err := v.ValidateNonZero(id); err != nil {
			return err
		}
		if i > 0 && id <= ids[i-1] {
			return ErrSegmentOrder
		}
	}
	return nil
}
