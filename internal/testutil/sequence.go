package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/wal"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

type entryKind int

const (
	entryMarker entryKind = iota
	entryOp
	entryRaw
	entryRotate
)

type seqEntry struct {
	kind    entryKind
	tag     record.Tag
	txnID   uint64
	op      op.Op
	payload []byte
	// jump is the start seq of the segment after a rotation, if larger.
	jump uint64
}

// Sequence describes a mailbox log to be built in memory or on disk. Entries
// get sequence numbers and segments get IDs exactly as wal.Log assigns them.
type Sequence struct {
	entries  []seqEntry
	firstSeq uint64
	flags    record.SegmentFlags
	created  time.Time
}

// NewSequence creates a new empty sequence whose first op gets seq 1.
func NewSequence() *Sequence {
	return &Sequence{firstSeq: wal.FirstSeq, created: time.UnixMilli(1_700_000_000_000)}
}

// StartingAt makes the first op of the sequence get seq.
func (s *Sequence) StartingAt(seq uint64) *Sequence {
	s.firstSeq = seq
	return s
}

// Compressed marks every segment of the sequence as snappy-compressed.
func (s *Sequence) Compressed() *Sequence {
	s.flags |= record.FlagSnappy
	return s
}

// Start adds a START marker for the given transaction ID.
func (s *Sequence) Start(txnID uint64) *Sequence {
	s.entries = append(s.entries, seqEntry{kind: entryMarker, tag: record.TagStart, txnID: txnID})
	return s
}

// Commit adds a COMMIT marker for the given transaction ID.
func (s *Sequence) Commit(txnID uint64) *Sequence {
	s.entries = append(s.entries, seqEntry{kind: entryMarker, tag: record.TagCommit, txnID: txnID})
	return s
}

// Abort adds an ABORT marker for the given transaction ID.
func (s *Sequence) Abort(txnID uint64) *Sequence {
	s.entries = append(s.entries, seqEntry{kind: entryMarker, tag: record.TagAbort, txnID: txnID})
	return s
}

// Op adds an encoded operation for the given transaction ID.
func (s *Sequence) Op(txnID uint64, o op.Op) *Sequence {
	s.entries = append(s.entries, seqEntry{kind: entryOp, tag: o.Tag(), txnID: txnID, op: o})
	return s
}

// Raw adds an operation entry with an arbitrary tag and payload, e.g. one
// no registered kind owns.
func (s *Sequence) Raw(txnID uint64, tag record.Tag, payload []byte) *Sequence {
	s.entries = append(s.entries, seqEntry{kind: entryRaw, tag: tag, txnID: txnID, payload: payload})
	return s
}

// Txn adds START, the given ops and COMMIT for txnID.
func (s *Sequence) Txn(txnID uint64, ops ...op.Op) *Sequence {
	s.Start(txnID)
	for _, o := range ops {
		s.Op(txnID, o)
	}
	return s.Commit(txnID)
}

// Rotate ends the current segment. The next entry starts a new one.
func (s *Sequence) Rotate() *Sequence {
	s.entries = append(s.entries, seqEntry{kind: entryRotate})
	return s
}

// SkipTo ends the current segment and starts the next one at seq, leaving
// the numbers in between unused, as a log reopened below its checkpoint does.
func (s *Sequence) SkipTo(seq uint64) *Sequence {
	s.entries = append(s.entries, seqEntry{kind: entryRotate, jump: seq})
	return s
}

// BuildSegments encodes the sequence into complete segment images keyed by
// segment ID. A rotation right after another rotation, or at the very
// start, is ignored since the log never leaves an empty segment behind.
func (s *Sequence) BuildSegments() (map[uint64][]byte, error) {
	segments := make(map[uint64][]byte)
	nextSeq := s.firstSeq
	var segID uint64
	var current []byte

	open := func() {
		segID = max(nextSeq, segID+1)
		current = record.EncodeSegmentHeader(record.SegmentHeader{
			Flags:    s.flags,
			StartSeq: nextSeq,
			Created:  s.created,
		})
	}
	open()

	for i, e := range s.entries {
		if e.kind == entryRotate {
			switch {
			case len(current) > record.SegmentHeaderSize:
				segments[segID] = current
				nextSeq = max(nextSeq, e.jump)
				open()
			case e.jump > nextSeq:
				nextSeq = e.jump
				segID--
				open()
			}
			continue
		}

		var (
			payload []byte
			seq     uint64
			err     error
		)
		switch e.kind {
		case entryMarker:
			payload = record.EncodeMarkerPayload(e.txnID)
			seq = nextSeq - 1
		case entryOp:
			payload, err = op.Encode(e.op)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			seq = nextSeq
			nextSeq++
		case entryRaw:
			payload = e.payload
			seq = nextSeq
			nextSeq++
		}

		frame, err := record.EncodeFrame(e.tag, e.txnID, seq, record.CompressPayload(s.flags, e.tag, payload))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		current = append(current, frame...)
	}
	segments[segID] = current
	return segments, nil
}

// Provider builds the sequence into an in-memory SegmentProvider.
func (s *Sequence) Provider() (*SegmentProvider, error) {
	segs, err := s.BuildSegments()
	if err != nil {
		return nil, err
	}
	p := NewSegmentProvider()
	for id, data := range segs {
		p.AddSegment(id, data)
	}
	return p, nil
}

// WriteDir writes the segments as files into dir, which must exist.
func (s *Sequence) WriteDir(dir string) ([]uint64, error) {
	segs, err := s.BuildSegments()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(segs))
	for id, data := range segs {
		if err := os.WriteFile(filepath.Join(dir, wal.SegmentFileName(id)), data, 0o600); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
