package wal

import (
	"io"

	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// FirstSeq is the sequence number of the first operation in a new log.
const FirstSeq uint64 = 1

// Appender is the write side of a mailbox log.
type Appender interface {
	// Append writes one entry and returns its sequence number. Operation
	// entries consume the next sequence number; markers report the current
	// high-water mark without consuming one.
	Append(tag record.Tag, txnID uint64, payload []byte) (seq uint64, err error)
	Flush() error
	FSync() error
	Close() error
}

// SegmentProvider lists and opens the segments of one mailbox log.
type SegmentProvider interface {
	// SegmentIDs returns segment IDs in ascending order.
	SegmentIDs() []uint64
	// OpenSegment opens a read-only reader for the given segment id.
	OpenSegment(segID uint64) (SegmentReader, error)
}

// SegmentReader reads one segment. Reader starts at the first frame, just
// past the header.
type SegmentReader interface {
	SegID() uint64
	Header() record.SegmentHeader
	SeekTo(offset int64) error // absolute byte offset within the segment
	Reader() io.Reader
	Close() error
}
