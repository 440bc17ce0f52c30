package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/julianstephens/go-utils/generic"
	"github.com/julianstephens/go-utils/helpers"

	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/metrics"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

type LogOpts struct {
	// 0 means "never rotate on size"
	SegmentMaxBytes int64
	// 0 means "never rotate on age"
	SegmentMaxAge time.Duration
	// Compress marks new segments as snappy-compressed.
	Compress bool

	Durability    redolog.DurabilityPolicy
	BatchEntries  int
	BatchInterval time.Duration

	// MinNextSeq is the lowest sequence number the log may hand out, usually
	// the mailbox checkpoint plus one. A log whose durable entries end below
	// it continues in a new segment starting at MinNextSeq.
	MinNextSeq uint64

	Metrics *metrics.Registry
	// Now defaults to time.Now.
	Now func() time.Time
}

// LogOptsFrom derives per-mailbox log options from root options.
func LogOptsFrom(o redolog.Options, m *metrics.Registry) LogOpts {
	o = o.WithDefaults()
	return LogOpts{
		SegmentMaxBytes: o.SegmentMaxBytes,
		SegmentMaxAge:   o.SegmentMaxAge,
		Compress:        o.Compress,
		Durability:      o.Durability,
		BatchEntries:    o.BatchEntries,
		BatchInterval:   o.BatchInterval,
		Metrics:         m,
	}
}

// Log is the append-only redo log of one mailbox: a directory of segments
// named by the first sequence number they may hold. Only the newest segment
// is written.
type Log struct {
	mu sync.Mutex

	dir  string
	opts LogOpts
	lg   logger.Logger

	// segments is always kept sorted for binary search
	segments    []uint64 // includes activeSegID
	activeSegID uint64
	active      *segmentAppender

	nextSeq  uint64
	maxTxnID uint64
	repaired bool

	flusher *BatchFlusher
	// broken latches a failed write; the segment tail is unknown after it.
	broken error
	closed bool
}

// ListSegments returns the segment IDs found in dir in ascending order.
func ListSegments(dir string) ([]uint64, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var segs []uint64
	for _, fi := range files {
		if fi.IsDir() {
			continue
		}
		if id, ok := ParseSegmentFileName(fi.Name()); ok {
			segs = append(segs, id)
		}
	}
	slices.Sort(segs)
	return segs, nil
}

// OpenLog opens or creates the log in dir. It validates the newest segment,
// truncates a torn final frame, and resumes sequence numbering after the
// last entry. A corrupt newest segment is an error: appending after it
// would make the corruption unrecoverable.
func OpenLog(dir string, opts LogOpts, lg logger.Logger) (*Log, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Log{
		dir:     dir,
		opts:    opts,
		lg:      logger.With(lg, "dir", dir),
		nextSeq: FirstSeq,
	}

	if err := helpers.Ensure(dir, true); err != nil {
		return nil, wrapLogErr("ensure_log_dir", ErrInvalidLogDir, dir, 0, err)
	}

	segs, err := ListSegments(dir)
	if err != nil {
		return nil, wrapLogErr("list_segments", ErrSegmentList, dir, 0, err)
	}
	m.segments = segs

	if err := m.dropTornSegmentLocked(); err != nil {
		return nil, err
	}

	if len(m.segments) == 0 {
		m.nextSeq = max(FirstSeq, opts.MinNextSeq)
		if err := m.createSegmentLocked(m.nextSeq); err != nil {
			return nil, err
		}
	} else if err := m.resumeLocked(); err != nil {
		return nil, err
	}

	if opts.MinNextSeq > m.nextSeq {
		m.lg.Warn("log ends below its checkpoint; continuing in a new segment",
			"next_seq", m.nextSeq,
			"min_next_seq", opts.MinNextSeq,
		)
		if err := m.createSegmentLocked(opts.MinNextSeq); err != nil {
			return nil, err
		}
		m.nextSeq = opts.MinNextSeq
	}

	if m.opts.Durability == redolog.DurabilityBatched {
		m.flusher = NewBatchFlusher(m.FSync, m.opts.BatchEntries, m.opts.BatchInterval, m.opts.Metrics, m.lg)
	}

	m.lg.Debug("log opened",
		"segments", len(m.segments),
		"active", m.activeSegID,
		"next_seq", m.nextSeq,
		"max_txn", m.maxTxnID,
	)
	return m, nil
}

// dropTornSegmentLocked removes a newest segment too short to hold a header.
// Such a file is left behind by a crash during segment creation and holds
// no entries.
func (m *Log) dropTornSegmentLocked() error {
	if len(m.segments) == 0 {
		return nil
	}
	last := m.segments[len(m.segments)-1]
	path := m.segmentPath(last)
	info, err := os.Stat(path)
	if err != nil {
		return wrapLogErr("stat_segment", ErrSegmentOpen, m.dir, last, err)
	}
	if info.Size() >= record.SegmentHeaderSize {
		return nil
	}

	m.lg.Warn("removing segment with torn header", "segment", last, "size", info.Size())
	if err := os.Remove(path); err != nil {
		return wrapLogErr("remove_torn_segment", ErrSegmentRemove, m.dir, last, err)
	}
	if err := syncDir(m.dir); err != nil {
		return wrapLogErr("remove_torn_segment", ErrSegmentRemove, m.dir, last, err)
	}
	m.segments = m.segments[:len(m.segments)-1]
	return nil
}

// resumeLocked scans the newest segment, repairs its tail and opens it for append.
func (m *Log) resumeLocked() error {
	activeID := m.segments[len(m.segments)-1]
	path := m.segmentPath(activeID)

	scan, err := ScanSegment(activeID, path)
	if err != nil {
		return m.scanErr(activeID, err)
	}

	switch scan.Tail {
	case TailCorrupt:
		return wrapLogErr("scan_segment", ErrSegmentCorrupt, m.dir, activeID, scan.Err)
	case TailTruncated:
		if err := truncateSegment(path, scan.ValidEnd); err != nil {
			return wrapLogErr("repair_tail", ErrSegmentRepair, m.dir, activeID, err)
		}
		m.repaired = true
		m.opts.Metrics.RecordTailRepair()
		m.lg.Warn("truncated torn tail",
			"segment", activeID,
			"size", scan.Size,
			"valid_end", scan.ValidEnd,
		)
	}

	m.nextSeq = scan.NextSeq()
	m.maxTxnID = scan.MaxTxnID

	// An empty newest segment says nothing about transaction ids; look back
	// for the last segment that has entries.
	if scan.Entries == 0 {
		for i := len(m.segments) - 2; i >= 0; i-- {
			prev, err := ScanSegment(m.segments[i], m.segmentPath(m.segments[i]))
			if err != nil {
				m.lg.Warn("cannot scan earlier segment", "segment", m.segments[i], "error", err)
				break
			}
			m.maxTxnID = max(m.maxTxnID, prev.MaxTxnID)
			m.nextSeq = max(m.nextSeq, prev.NextSeq())
			if prev.Entries > 0 {
				break
			}
		}
	}

	active, err := openSegmentForAppend(path, scan.Header, scan.ValidEnd, scan.Entries, m.opts.Now())
	if err != nil {
		return wrapLogErr("open_segment", ErrSegmentOpen, m.dir, activeID, err)
	}
	m.activeSegID = activeID
	m.active = active
	return nil
}

func (m *Log) scanErr(segID uint64, err error) error {
	return segmentOpenErr(m.dir, segID, err)
}

// segmentOpenErr classifies a failure to read a segment header.
func segmentOpenErr(dir string, segID uint64, err error) error {
	if errors.Is(err, redolog.ErrCorruptLog) {
		return wrapLogErr("scan_segment", ErrSegmentCorrupt, dir, segID, err)
	}
	return wrapLogErr("scan_segment", ErrSegmentOpen, dir, segID, err)
}

func truncateSegment(path string, end int64) error {
	return withFile(path, os.O_RDWR, func(f *os.File) error {
		if err := f.Truncate(end); err != nil {
			return err
		}
		return f.Sync()
	})
}

// createSegmentLocked closes the active segment, if any, and starts a new
// one whose first operation will get startSeq. The ID is startSeq unless a
// segment without operations already claimed it.
func (m *Log) createSegmentLocked(startSeq uint64) error {
	segID := startSeq
	if m.active != nil {
		segID = max(startSeq, m.activeSegID+1)
		if err := m.active.close(); err != nil {
			return wrapLogErr("close_segment", ErrSegmentClose, m.dir, m.activeSegID, err)
		}
		m.active = nil
	}

	now := m.opts.Now()
	hdr := record.SegmentHeader{
		Version:  record.FormatVersion,
		Flags:    generic.If(m.opts.Compress, record.FlagSnappy, record.SegmentFlags(0)),
		StartSeq: startSeq,
		Created:  time.UnixMilli(now.UnixMilli()),
	}
	active, err := createSegment(m.dir, segID, hdr, now)
	if err != nil {
		return wrapLogErr("create_segment", ErrSegmentCreate, m.dir, segID, err)
	}

	m.segments = append(m.segments, segID)
	slices.Sort(m.segments)
	m.activeSegID = segID
	m.active = active
	return nil
}

func (m *Log) SegmentIDs() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.segments)
}

func (m *Log) SegmentPath(segID uint64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := slices.BinarySearch(m.segments, segID); !ok {
		return ""
	}
	return m.segmentPath(segID)
}

// OpenSegment opens a read-only reader. Buffered entries of the active
// segment are flushed first so the reader sees everything appended so far.
func (m *Log) OpenSegment(segID uint64) (SegmentReader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := slices.BinarySearch(m.segments, segID); !ok {
		return nil, wrapLogErr("open_segment", ErrSegmentNotFound, m.dir, segID, nil)
	}
	if segID == m.activeSegID && !m.closed {
		if err := m.active.flush(); err != nil {
			return nil, wrapLogErr("flush_segment", ErrSegmentFlush, m.dir, segID, err)
		}
	}

	sr, err := OpenSegmentFile(segID, m.segmentPath(segID))
	if err != nil {
		return nil, m.scanErr(segID, err)
	}
	return sr, nil
}

// Append frames one entry into the active segment, rotating first when the
// frame would overflow SegmentMaxBytes or the segment is older than
// SegmentMaxAge. A nil marker payload is filled in from txnID.
func (m *Log) Append(tag record.Tag, txnID uint64, payload []byte) (seq uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, logClosed(m.dir)
	}
	if m.broken != nil {
		return 0, m.broken
	}
	if m.flusher != nil {
		if ferr := m.flusher.Err(); ferr != nil {
			return 0, wrapLogErr("append", ErrBatchFlush, m.dir, m.activeSegID, ferr)
		}
	}

	if tag.IsMarker() && payload == nil {
		payload = record.EncodeMarkerPayload(txnID)
	}
	seq = generic.If(tag.IsMarker(), m.nextSeq-1, m.nextSeq)

	frame, err := m.encodeLocked(tag, txnID, seq, payload)
	if err != nil {
		return 0, err
	}
	if m.shouldRotateLocked(int64(len(frame))) {
		if err := m.createSegmentLocked(m.nextSeq); err != nil {
			return 0, wrapLogErr("rotate_segment", ErrSegmentRotate, m.dir, m.activeSegID, err)
		}
		m.opts.Metrics.RecordRotation()
		m.lg.Info("rotated segment", "segment", m.activeSegID, "start_seq", m.nextSeq)
		// The new segment may use a different compression flag.
		if frame, err = m.encodeLocked(tag, txnID, seq, payload); err != nil {
			return 0, err
		}
	}

	if _, err := m.active.append(tag, frame); err != nil {
		m.broken = wrapLogErr("append_entry", ErrAppendFailed, m.dir, m.activeSegID, err)
		return 0, m.broken
	}
	if !tag.IsMarker() {
		m.nextSeq++
	}
	m.maxTxnID = max(m.maxTxnID, txnID)
	m.opts.Metrics.RecordAppend(appendKind(tag), int64(len(frame)))

	if m.flusher != nil {
		m.flusher.Notify()
		return seq, nil
	}
	if err := m.fsyncLocked(); err != nil {
		m.broken = err
		return 0, err
	}
	return seq, nil
}

func (m *Log) encodeLocked(tag record.Tag, txnID, seq uint64, payload []byte) ([]byte, error) {
	if err := record.ValidateFrame(tag, txnID, payload); err != nil {
		return nil, err
	}
	stored := record.CompressPayload(m.active.header.Flags, tag, payload)
	return record.EncodeFrame(tag, txnID, seq, stored)
}

// shouldRotateLocked never rotates an empty segment, so an oversized frame
// still lands somewhere.
func (m *Log) shouldRotateLocked(frameLen int64) bool {
	if m.active.entries == 0 {
		return false
	}
	if m.opts.SegmentMaxBytes > 0 && m.active.offset+frameLen > m.opts.SegmentMaxBytes {
		return true
	}
	if m.opts.SegmentMaxAge > 0 && m.opts.Now().Sub(m.active.opened) >= m.opts.SegmentMaxAge {
		return true
	}
	return false
}

func appendKind(tag record.Tag) string {
	switch tag {
	case record.TagStart:
		return "start"
	case record.TagCommit:
		return "commit"
	case record.TagAbort:
		return "abort"
	default:
		return "op"
	}
}

// Rotate closes the active segment and starts a new one. It is a no-op when
// the active segment has no entries.
func (m *Log) Rotate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return logClosed(m.dir)
	}
	if m.active.entries == 0 {
		return nil
	}
	if err := m.createSegmentLocked(m.nextSeq); err != nil {
		return wrapLogErr("rotate_segment", ErrSegmentRotate, m.dir, m.activeSegID, err)
	}
	m.opts.Metrics.RecordRotation()
	return nil
}

// Flush flushes buffered writes of the active segment.
func (m *Log) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return logClosed(m.dir)
	}
	if err := m.active.flush(); err != nil {
		return wrapLogErr("flush_segment", ErrSegmentFlush, m.dir, m.activeSegID, err)
	}
	return nil
}

// FSync flushes then fsyncs the active segment.
func (m *Log) FSync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return logClosed(m.dir)
	}
	return m.fsyncLocked()
}

func (m *Log) fsyncLocked() error {
	start := time.Now()
	if err := m.active.fsync(); err != nil {
		return wrapLogErr("fsync_segment", ErrSegmentSync, m.dir, m.activeSegID, err)
	}
	m.opts.Metrics.RecordFsync(time.Since(start))
	return nil
}

// Sync makes every appended entry durable now, whatever the policy, and
// returns a latched background flush failure if there is one.
func (m *Log) Sync() error {
	if err := m.FSync(); err != nil {
		return err
	}
	if m.flusher != nil {
		if err := m.flusher.Err(); err != nil {
			return wrapLogErr("sync", ErrBatchFlush, m.dir, 0, err)
		}
	}
	return nil
}

// Purge removes closed segments whose every operation has a sequence number
// at or below checkpoint. The active segment is never removed.
func (m *Log) Purge(checkpoint uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, logClosed(m.dir)
	}

	var removed []uint64
	for len(m.segments) > 1 {
		segID, next := m.segments[0], m.segments[1]
		// Operations in segID are below next's ID.
		if next-1 > checkpoint {
			break
		}
		if err := os.Remove(m.segmentPath(segID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, wrapLogErr("purge_segment", ErrSegmentRemove, m.dir, segID, err)
		}
		removed = append(removed, segID)
		m.segments = m.segments[1:]
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if err := syncDir(m.dir); err != nil {
		return removed, wrapLogErr("purge_segment", ErrSegmentRemove, m.dir, 0, err)
	}
	m.opts.Metrics.RecordPurge(len(removed))
	m.lg.Info("purged segments", "count", len(removed), "checkpoint", checkpoint)
	return removed, nil
}

// Close stops the batch flusher, then fsyncs and closes the active segment.
func (m *Log) Close() error {
	var flushErr error
	if m.flusher != nil {
		flushErr = m.flusher.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.active.close(); err != nil {
		return wrapLogErr("close_segment", ErrSegmentClose, m.dir, m.activeSegID, err)
	}
	if flushErr != nil {
		return wrapLogErr("close", ErrBatchFlush, m.dir, m.activeSegID, flushErr)
	}
	return nil
}

// NextSeq returns the sequence number the next operation will get.
func (m *Log) NextSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSeq
}

// MaxTxnID returns the largest transaction id appended or found on open.
func (m *Log) MaxTxnID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxTxnID
}

// Repaired reports whether OpenLog truncated a torn tail.
func (m *Log) Repaired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repaired
}

func (m *Log) Dir() string {
	return m.dir
}

func (m *Log) String() string {
	return fmt.Sprintf("wal.Log(%s, active=%d, next_seq=%d)", m.dir, m.activeSegID, m.NextSeq())
}

func (m *Log) segmentPath(segID uint64) string {
	return filepath.Join(m.dir, SegmentFileName(segID))
}
