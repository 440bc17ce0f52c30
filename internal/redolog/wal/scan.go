package wal

import (
	"bufio"
	"os"

	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// TailStatus describes how the readable part of a log ends.
type TailStatus int

const (
	// TailValid means the last frame is complete.
	TailValid TailStatus = iota
	// TailTruncated means the final frame is partial (a torn write).
	TailTruncated
	// TailCorrupt means a frame failed validation before the end of data.
	TailCorrupt
	// TailMissing means there was nothing to read.
	TailMissing
)

func (s TailStatus) String() string {
	switch s {
	case TailValid:
		return "valid"
	case TailTruncated:
		return "truncated"
	case TailCorrupt:
		return "corrupt"
	case TailMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// SegmentScan summarizes one pass over a segment file.
type SegmentScan struct {
	SegID    uint64
	Header   record.SegmentHeader
	Size     int64
	ValidEnd int64 // end of the last complete, valid frame

	Entries  int
	Ops      int
	FirstSeq uint64 // first operation seq, 0 if none
	LastSeq  uint64 // last operation seq, 0 if none
	// HighWater is the largest seq field seen on any entry.
	HighWater uint64
	MaxTxnID  uint64

	Tail TailStatus
	// Err is the parse error that ended the scan early, if any.
	Err error
}

// ScanSegment reads every frame of a segment. A partial final frame or a
// corrupt frame stops the scan and is reported in Tail and Err; only a
// failure to open or read the file, or a bad header, is returned as error.
func ScanSegment(segID uint64, path string) (*SegmentScan, error) {
	scan := &SegmentScan{SegID: segID}

	err := withFile(path, os.O_RDONLY, func(f *os.File) error {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		scan.Size = info.Size()

		br := bufio.NewReaderSize(f, segmentWriterBufferSize)
		hdr, err := record.ReadSegmentHeader(br)
		if err != nil {
			return err
		}
		scan.Header = hdr
		scan.ValidEnd = record.SegmentHeaderSize

		fr := record.NewFrameReader(br, record.SegmentHeaderSize)
		for {
			fe, err := fr.Next()
			if err != nil {
				switch {
				case record.IsCleanEOF(err):
					scan.Tail = TailValid
					if scan.Entries == 0 {
						scan.Tail = TailMissing
					}
					return nil
				case record.IsTruncation(err):
					scan.Tail = TailTruncated
					scan.Err = err
					return nil
				case record.IsCorruption(err):
					scan.Tail = TailCorrupt
					scan.Err = err
					return nil
				default:
					return err
				}
			}
			scan.observe(fe)
		}
	})
	if err != nil {
		return nil, err
	}
	return scan, nil
}

func (s *SegmentScan) observe(fe record.FramedEntry) {
	e := fe.Entry
	s.Entries++
	s.ValidEnd = fe.End()
	if !e.Tag.IsMarker() {
		s.Ops++
		if s.FirstSeq == 0 {
			s.FirstSeq = e.Seq
		}
		s.LastSeq = e.Seq
	}
	s.HighWater = max(s.HighWater, e.Seq)
	s.MaxTxnID = max(s.MaxTxnID, e.TxnID)
}

// NextSeq returns the sequence number the next operation after this segment gets.
func (s *SegmentScan) NextSeq() uint64 {
	return max(s.Header.StartSeq, s.HighWater+1)
}
