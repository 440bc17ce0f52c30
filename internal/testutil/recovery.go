package testutil

import (
	"bytes"
	"errors"
	"io"
	"slices"

	"github.com/julianstephens/redolog/internal/redolog/wal"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// SegmentReader is an in-memory wal.SegmentReader. Data holds the whole
// segment file, header included.
type SegmentReader struct {
	SegmentID      uint64
	Data           []byte
	pos            int64
	Closed         bool
	SeekErr        error
	ReadErr        error
	CloseErr       error
	LastSeekOffset int64
	SeekCallCount  int
}

// SegID returns the segment ID
func (m *SegmentReader) SegID() uint64 {
	return m.SegmentID
}

// Header decodes the segment header. A damaged header yields the zero value.
func (m *SegmentReader) Header() record.SegmentHeader {
	hdr, _ := record.DecodeSegmentHeader(m.Data)
	return hdr
}

// SeekTo seeks to the specified absolute offset
func (m *SegmentReader) SeekTo(offset int64) error {
	if m.SeekErr != nil {
		return m.SeekErr
	}
	if offset < record.SegmentHeaderSize {
		offset = record.SegmentHeaderSize
	}
	m.pos = offset
	m.LastSeekOffset = offset
	m.SeekCallCount++
	return nil
}

// Reader returns an io.Reader positioned at the current offset
func (m *SegmentReader) Reader() io.Reader {
	pos := max(m.pos, int64(record.SegmentHeaderSize))
	if pos > int64(len(m.Data)) {
		pos = int64(len(m.Data))
	}
	if m.ReadErr != nil {
		return &failingReader{err: m.ReadErr}
	}
	return bytes.NewReader(m.Data[pos:])
}

// Close closes the segment reader
func (m *SegmentReader) Close() error {
	m.Closed = true
	return m.CloseErr
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

// SegmentProvider is an in-memory wal.SegmentProvider
type SegmentProvider struct {
	Segments map[uint64][]byte
	OpenErr  error
	// ValidateHeaders makes OpenSegment fail header validation the way the file
	// provider does.
	ValidateHeaders bool

	opened []*SegmentReader
}

// NewSegmentProvider creates a new test segment provider
func NewSegmentProvider() *SegmentProvider {
	return &SegmentProvider{
		Segments:        make(map[uint64][]byte),
		ValidateHeaders: true,
	}
}

// AddSegment adds a segment, header included, to the provider
func (p *SegmentProvider) AddSegment(segID uint64, data []byte) {
	p.Segments[segID] = data
}

// SetOpenError sets an error to be returned on OpenSegment calls
func (p *SegmentProvider) SetOpenError(err error) {
	p.OpenErr = err
}

// Truncate drops the last n bytes of a segment
func (p *SegmentProvider) Truncate(segID uint64, n int) {
	data := p.Segments[segID]
	if n > len(data) {
		n = len(data)
	}
	p.Segments[segID] = data[:len(data)-n]
}

// FlipByte inverts one byte of a segment
func (p *SegmentProvider) FlipByte(segID uint64, offset int) {
	p.Segments[segID][offset] ^= 0xFF
}

// LastSegID returns the highest segment ID, or 0 when empty
func (p *SegmentProvider) LastSegID() uint64 {
	ids := p.SegmentIDs()
	if len(ids) == 0 {
		return 0
	}
	return ids[len(ids)-1]
}

// SegmentIDs returns the segment IDs in ascending order
func (p *SegmentProvider) SegmentIDs() []uint64 {
	ids := make([]uint64, 0, len(p.Segments))
	for id := range p.Segments {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// OpenSegment opens a segment and returns it or an error
func (p *SegmentProvider) OpenSegment(segID uint64) (wal.SegmentReader, error) {
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	data, ok := p.Segments[segID]
	if !ok {
		return nil, errors.New("segment not found")
	}
	if p.ValidateHeaders {
		if _, err := record.DecodeSegmentHeader(data); err != nil {
			return nil, err
		}
	}
	sr := &SegmentReader{SegmentID: segID, Data: data}
	p.opened = append(p.opened, sr)
	return sr, nil
}

// AllClosed reports whether every reader handed out has been closed
func (p *SegmentProvider) AllClosed() bool {
	for _, sr := range p.opened {
		if !sr.Closed {
			return false
		}
	}
	return true
}
