package wal

import (
	"io"
	"os"

	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

type fileSegmentReader struct {
	segID  uint64
	header record.SegmentHeader
	file   *os.File
}

// OpenSegmentFile opens path read-only and validates its header. The
// returned reader is positioned at the first frame.
func OpenSegmentFile(segID uint64, path string) (SegmentReader, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	hdr, err := record.ReadSegmentHeader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileSegmentReader{segID: segID, header: hdr, file: f}, nil
}

func (sr *fileSegmentReader) SegID() uint64 {
	return sr.segID
}

func (sr *fileSegmentReader) Header() record.SegmentHeader {
	return sr.header
}

func (sr *fileSegmentReader) SeekTo(offset int64) error {
	if offset < record.SegmentHeaderSize {
		offset = record.SegmentHeaderSize
	}
	_, err := sr.file.Seek(offset, io.SeekStart)
	return err
}

func (sr *fileSegmentReader) Reader() io.Reader {
	return sr.file
}

func (sr *fileSegmentReader) Close() error {
	return sr.file.Close()
}
