package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

const (
	segmentWriterBufferSize = 64 << 10 // 64KiB

	segmentFilePattern = "segment-%020d.redo"
)

var (
	ErrNilSegmentFile = errors.New("wal: nil segment file")
	ErrClosedWriter   = errors.New("wal: segment writer closed")
	ErrShortWrite     = errors.New("wal: short write")
)

// SegmentFileName returns the file name for segment segID.
func SegmentFileName(segID uint64) string {
	return fmt.Sprintf(segmentFilePattern, segID)
}

// ParseSegmentFileName extracts the segment ID from a file name.
func ParseSegmentFileName(name string) (uint64, bool) {
	var segID uint64
	n, err := fmt.Sscanf(name, segmentFilePattern, &segID)
	if err != nil || n != 1 || name != SegmentFileName(segID) {
		return 0, false
	}
	return segID, true
}

// SegmentAppendError reports a failed frame write.
type SegmentAppendError struct {
	Err    error
	Cause  error
	Offset int64
	Tag    record.Tag
	Have   int
	Want   int
}

func (e *SegmentAppendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v at %d (%s): %v", e.Err, e.Offset, e.Tag, e.Cause)
	}
	return fmt.Sprintf("%v at %d (%s)", e.Err, e.Offset, e.Tag)
}

func (e *SegmentAppendError) Unwrap() error { return e.Err }

// segmentAppender buffers frames for the active segment file.
type segmentAppender struct {
	file    *os.File
	writer  *bufio.Writer
	header  record.SegmentHeader
	offset  int64
	entries int
	opened  time.Time
	closed  bool
}

// createSegment writes a header to a new file and returns an appender
// positioned after it. The file and its directory are synced before return.
func createSegment(dir string, segID uint64, hdr record.SegmentHeader, now time.Time) (*segmentAppender, error) {
	path := filepath.Join(dir, SegmentFileName(segID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_EXCL|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		return nil, err
	}
	hdrBytes := record.EncodeSegmentHeader(hdr)
	if _, err := f.Write(hdrBytes); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := syncDir(dir); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segmentAppender{
		file:   f,
		writer: bufio.NewWriterSize(f, segmentWriterBufferSize),
		header: hdr,
		offset: int64(len(hdrBytes)),
		opened: now,
	}, nil
}

// openSegmentForAppend reopens an existing segment whose valid data ends at end.
func openSegmentForAppend(path string, hdr record.SegmentHeader, end int64, entries int, now time.Time) (*segmentAppender, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, err
	}
	opened := hdr.Created
	if opened.IsZero() || opened.After(now) {
		opened = now
	}
	return &segmentAppender{
		file:    f,
		writer:  bufio.NewWriterSize(f, segmentWriterBufferSize),
		header:  hdr,
		offset:  end,
		entries: entries,
		opened:  opened,
	}, nil
}

// append writes one encoded frame and returns the offset it starts at.
func (sa *segmentAppender) append(tag record.Tag, frame []byte) (int64, error) {
	if sa.closed {
		return 0, &SegmentAppendError{Err: ErrClosedWriter, Offset: sa.offset, Tag: tag}
	}
	start := sa.offset
	n, err := sa.writer.Write(frame)
	if err != nil {
		return 0, &SegmentAppendError{Err: ErrAppendFailed, Cause: err, Offset: start, Tag: tag, Have: n, Want: len(frame)}
	}
	if n != len(frame) {
		return 0, &SegmentAppendError{Err: ErrShortWrite, Offset: start, Tag: tag, Have: n, Want: len(frame)}
	}
	sa.offset += int64(n)
	sa.entries++
	return start, nil
}

func (sa *segmentAppender) flush() error {
	if sa.closed {
		return ErrClosedWriter
	}
	return sa.writer.Flush()
}

func (sa *segmentAppender) fsync() error {
	if err := sa.flush(); err != nil {
		return err
	}
	return sa.file.Sync()
}

// close flushes, fsyncs and closes the segment file.
func (sa *segmentAppender) close() error {
	if sa.closed {
		return nil
	}
	err := sa.fsync()
	sa.closed = true
	if cerr := sa.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
