package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog/mailbox/memstore"
	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/recovery"
	"github.com/julianstephens/redolog/internal/redolog/wal"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

var (
	ErrRecoverFailed = errors.New("cli: recovery failed")
	ErrVerifyFailed  = errors.New("cli: verification failed")
	ErrDumpFailed    = errors.New("cli: segment dump stopped early")
)

// RecoverCmd replays every mailbox log under a root into the in-memory
// reference store and advances checkpoints.
type RecoverCmd struct {
	Root   string `arg:"" help:"Log root directory" type:"existingdir"`
	DryRun bool   `help:"Replay without advancing checkpoints"`

	CheckpointFlags `embed:""`
}

func (c *RecoverCmd) Run(g *Globals) error {
	ctx := context.Background()
	cps, err := c.Open(ctx, c.Root)
	if err != nil {
		return err
	}
	defer func() { _ = cps.Close() }()

	ids, err := wal.ListMailboxes(c.Root)
	if err != nil {
		return err
	}

	player := recovery.NewPlayer(memstore.New(memstore.WithAutoCreate()), cps, recovery.DirSource(c.Root), recovery.PlayerOpts{
		Parallelism: g.Options.RecoveryParallelism,
		DryRun:      c.DryRun,
		Metrics:     g.Metrics,
	}, g.Logger)
	report, err := player.RecoverAll(ctx, ids)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "MAILBOX\tRESULT\tCHECKPOINT\tREACHED\tAPPLIED\tSKIPPED\tDISCARDED\tTAIL\n")
	for _, o := range report.Outcomes {
		res := o.Result
		if res == nil {
			res = &recovery.Result{MailboxID: o.MailboxID}
		}
		result := "ok"
		if !o.OK() {
			result = "FAILED"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			o.MailboxID, result, res.Checkpoint, res.ReachedSeq, res.Applied, res.Skipped, res.DiscardedTxns, res.TailStatus)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(g.Out, "run %s: %d mailboxes, %d failed, %s (dry run: %t)\n",
		report.RunID, len(report.Outcomes), len(report.Failed()), report.Duration, report.DryRun)

	for _, o := range report.Failed() {
		_, _ = fmt.Fprintf(g.Out, "  mailbox %d: %v\n", o.MailboxID, o.Err)
	}
	if err := report.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRecoverFailed, err)
	}
	return nil
}

// DumpCmd prints every frame of one segment file.
type DumpCmd struct {
	Segment string `arg:"" help:"Segment file" type:"existingfile"`
}

func (c *DumpCmd) Run(g *Globals) error {
	segID, ok := wal.ParseSegmentFileName(filepath.Base(c.Segment))
	if !ok {
		return fmt.Errorf("%w: %s is not a segment file name", ErrDumpFailed, c.Segment)
	}
	sr, err := wal.OpenSegmentFile(segID, c.Segment)
	if err != nil {
		return err
	}
	defer func() { _ = sr.Close() }()

	hdr := sr.Header()
	_, _ = fmt.Fprintf(g.Out, "segment %d version=%d start_seq=%d created=%s compressed=%t\n",
		segID, hdr.Version, hdr.StartSeq, hdr.Created.UTC().Format("2006-01-02T15:04:05.000Z"), hdr.Compressed())

	fr := record.NewFrameReader(sr.Reader(), record.SegmentHeaderSize)
	frames := 0
	for {
		fe, err := fr.Next()
		if err != nil {
			switch {
			case record.IsCleanEOF(err):
				_, _ = fmt.Fprintf(g.Out, "%d frames, clean end at offset %d\n", frames, fr.Offset())
				return nil
			case record.IsTruncation(err):
				_, _ = fmt.Fprintf(g.Out, "%d frames, torn tail: %v\n", frames, err)
				return nil
			default:
				_, _ = fmt.Fprintf(g.Out, "%d frames, stopped: %v\n", frames, err)
				return fmt.Errorf("%w: %w", ErrDumpFailed, err)
			}
		}
		frames++
		_, _ = fmt.Fprintf(g.Out, "@%-8d %s\n", fe.Offset, describeEntry(hdr, fe.Entry))
	}
}

func describeEntry(hdr record.SegmentHeader, e record.Entry) string {
	if e.Tag.IsMarker() {
		return fmt.Sprintf("%s [txn=%d seq=%d]", e.Tag, e.TxnID, e.Seq)
	}
	payload, err := record.DecompressPayload(hdr.Flags, e.Tag, e.Payload)
	if err != nil {
		return fmt.Sprintf("%s [txn=%d seq=%d] <undecodable: %v>", op.Name(e.Tag), e.TxnID, e.Seq, err)
	}
	o, err := op.Decode(e.Tag, e.TxnID, e.Seq, payload)
	if err != nil {
		return fmt.Sprintf("%s [txn=%d seq=%d] <undecodable: %v>", op.Name(e.Tag), e.TxnID, e.Seq, err)
	}
	return op.String(o)
}

// VerifyCmd scans every segment under a root without applying anything.
// Sequence numbers skipped below the mailbox checkpoint are not a gap.
type VerifyCmd struct {
	Root string `arg:"" help:"Log root directory" type:"existingdir"`

	CheckpointFlags `embed:""`
}

func (c *VerifyCmd) Run(g *Globals) error {
	ctx := context.Background()
	cps, err := c.Open(ctx, c.Root)
	if err != nil {
		return err
	}
	defer func() { _ = cps.Close() }()

	ids, err := wal.ListMailboxes(c.Root)
	if err != nil {
		return err
	}

	bad := 0
	for _, id := range ids {
		cp, err := cps.Read(ctx, id)
		if err != nil {
			return err
		}
		problems, stats, err := verifyMailbox(wal.MailboxDir(c.Root, id), cp)
		if err != nil {
			return err
		}
		if len(problems) == 0 {
			_, _ = fmt.Fprintf(g.Out, "mailbox %d: ok (%d segments, seq %d..%d, tail %s)\n",
				id, stats.segments, stats.firstSeq, stats.lastSeq, stats.tail)
			continue
		}
		bad++
		_, _ = fmt.Fprintf(g.Out, "mailbox %d: CORRUPT\n", id)
		for _, p := range problems {
			_, _ = fmt.Fprintf(g.Out, "  %s\n", p)
		}
		g.Logger.Warn("mailbox log failed verification", "mailbox", id, "problems", len(problems))
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d of %d mailboxes", ErrVerifyFailed, bad, len(ids))
	}
	return nil
}

type logStats struct {
	segments int
	bytes    int64
	firstSeq uint64
	lastSeq  uint64
	maxTxnID uint64
	tail     wal.TailStatus
}

// verifyMailbox scans the segments of one log. A torn tail is only
// acceptable in the newest segment, and segment start sequence numbers must
// continue from the previous segment.
func verifyMailbox(dir string, checkpoint uint64) ([]string, logStats, error) {
	var stats logStats
	segs, err := wal.ListSegments(dir)
	if err != nil {
		return nil, stats, err
	}
	stats.tail = wal.TailMissing

	var problems []string
	var nextSeq uint64
	for i, segID := range segs {
		last := i == len(segs)-1
		scan, err := wal.ScanSegment(segID, filepath.Join(dir, wal.SegmentFileName(segID)))
		if err != nil {
			// A crash during segment creation; the next open removes it.
			if last && errors.Is(err, record.ErrHeaderTruncated) {
				stats.tail = wal.TailTruncated
				continue
			}
			problems = append(problems, fmt.Sprintf("segment %d: %v", segID, err))
			continue
		}
		stats.segments++
		stats.bytes += scan.Size
		stats.maxTxnID = max(stats.maxTxnID, scan.MaxTxnID)
		if stats.firstSeq == 0 && scan.FirstSeq != 0 {
			stats.firstSeq = scan.FirstSeq
		}
		stats.lastSeq = max(stats.lastSeq, scan.LastSeq)
		stats.tail = scan.Tail

		if nextSeq != 0 && !continuesAt(scan.Header.StartSeq, nextSeq, checkpoint) {
			problems = append(problems, fmt.Sprintf("segment %d: starts at seq %d, expected %d", segID, scan.Header.StartSeq, nextSeq))
		}
		nextSeq = scan.NextSeq()

		switch {
		case scan.Tail == wal.TailCorrupt:
			problems = append(problems, fmt.Sprintf("segment %d: corrupt at offset %d: %v", segID, scan.ValidEnd, scan.Err))
		case scan.Tail == wal.TailTruncated && !last:
			problems = append(problems, fmt.Sprintf("segment %d: truncated before a later segment at offset %d", segID, scan.ValidEnd))
		}
	}
	return problems, stats, nil
}

// continuesAt reports whether a segment starting at startSeq may follow one
// that ended before next. A log reopened below its checkpoint jumps forward.
func continuesAt(startSeq, next, checkpoint uint64) bool {
	return startSeq == next || (startSeq > next && startSeq-1 <= checkpoint)
}

// PurgeCmd removes segments entirely at or below each mailbox checkpoint.
type PurgeCmd struct {
	Root string `arg:"" help:"Log root directory" type:"existingdir"`

	CheckpointFlags `embed:""`
}

func (c *PurgeCmd) Run(g *Globals) error {
	ctx := context.Background()
	cps, err := c.Open(ctx, c.Root)
	if err != nil {
		return err
	}
	defer func() { _ = cps.Close() }()

	ids, err := wal.ListMailboxes(c.Root)
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		removed, err := purgeMailbox(ctx, g, c.Root, id, cps.Read)
		if err != nil {
			errs = append(errs, fmt.Errorf("mailbox %d: %w", id, err))
			continue
		}
		_, _ = fmt.Fprintf(g.Out, "mailbox %d: purged %d segments %v\n", id, len(removed), removed)
	}
	return errors.Join(errs...)
}

func purgeMailbox(ctx context.Context, g *Globals, root string, id uint64, readCheckpoint func(context.Context, uint64) (uint64, error)) ([]uint64, error) {
	cp, err := readCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == 0 {
		return nil, nil
	}
	log, err := wal.OpenLog(wal.MailboxDir(root, id), wal.LogOptsFrom(g.Options, g.Metrics), logger.With(g.Logger, "mailbox", id))
	if err != nil {
		return nil, err
	}
	removed, err := log.Purge(cp)
	if cerr := log.Close(); err == nil {
		err = cerr
	}
	return removed, err
}

// StatsCmd prints segment counts, sequence ranges and sizes per mailbox.
type StatsCmd struct {
	Root string `arg:"" help:"Log root directory" type:"existingdir"`

	CheckpointFlags `embed:""`
}

func (c *StatsCmd) Run(g *Globals) error {
	ctx := context.Background()
	cps, err := c.Open(ctx, c.Root)
	if err != nil {
		return err
	}
	defer func() { _ = cps.Close() }()

	ids, err := wal.ListMailboxes(c.Root)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "MAILBOX\tSEGMENTS\tBYTES\tFIRST_SEQ\tLAST_SEQ\tMAX_TXN\tCHECKPOINT\tTAIL\tPROBLEMS\n")
	for _, id := range ids {
		cp, err := cps.Read(ctx, id)
		if err != nil {
			return err
		}
		problems, stats, err := verifyMailbox(wal.MailboxDir(c.Root, id), cp)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%d\n",
			id, stats.segments, stats.bytes, stats.firstSeq, stats.lastSeq, stats.maxTxnID, cp, stats.tail, len(problems))
	}
	return tw.Flush()
}

// TagsCmd lists the registered operation kinds.
type TagsCmd struct{}

func (c *TagsCmd) Run(g *Globals) error {
	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "TAG\tNAME\n")
	for _, tag := range []record.Tag{record.TagStart, record.TagCommit, record.TagAbort} {
		_, _ = fmt.Fprintf(tw, "%d\t%s\n", tag, op.Name(tag))
	}
	for _, k := range op.Kinds() {
		_, _ = fmt.Fprintf(tw, "%d\t%s\n", k.Tag, k.Name)
	}
	return tw.Flush()
}
