package record

import (
	"encoding/binary"
	"io"
	"time"
)

const (
	// SegmentMagic is "MRDO" read as a little-endian uint32.
	SegmentMagic uint32 = 0x4F44524D

	FormatVersion uint16 = 1

	// SegmentHeaderSize is [magic (4)][version (2)][flags (2)][start_seq (8)][created_ms (8)][crc (4)]
	SegmentHeaderSize = 28
)

// SegmentFlags are per-segment format switches recorded in the header.
type SegmentFlags uint16

const (
	// FlagSnappy marks operation payloads in the segment as snappy-compressed.
	FlagSnappy SegmentFlags = 1 << iota
)

const knownFlags = FlagSnappy

// SegmentHeader is the fixed preamble of every segment file.
type SegmentHeader struct {
	Version  uint16
	Flags    SegmentFlags
	StartSeq uint64
	Created  time.Time
}

// Compressed reports whether operation payloads in the segment are snappy-compressed.
func (h SegmentHeader) Compressed() bool {
	return h.Flags&FlagSnappy != 0
}

// EncodeSegmentHeader encodes h. A zero Version is written as FormatVersion.
func EncodeSegmentHeader(h SegmentHeader) []byte {
	if h.Version == 0 {
		h.Version = FormatVersion
	}
	data := make([]byte, SegmentHeaderSize)
	off := 0
	binary.LittleEndian.PutUint32(data[off:], SegmentMagic)
	off += 4
	binary.LittleEndian.PutUint16(data[off:], h.Version)
	off += 2
	binary.LittleEndian.PutUint16(data[off:], uint16(h.Flags))
	off += 2
	binary.LittleEndian.PutUint64(data[off:], h.StartSeq)
	off += 8
	binary.LittleEndian.PutUint64(data[off:], uint64(h.Created.UnixMilli())) //nolint:gosec
	off += 8
	binary.LittleEndian.PutUint32(data[off:], ComputeChecksum(data[:off]))
	return data
}

// DecodeSegmentHeader decodes a segment header.
func DecodeSegmentHeader(data []byte) (SegmentHeader, error) {
	if len(data) < SegmentHeaderSize {
		return SegmentHeader{}, &HeaderError{Err: ErrHeaderTruncated, Have: len(data)}
	}
	data = data[:SegmentHeaderSize]

	if binary.LittleEndian.Uint32(data[0:4]) != SegmentMagic {
		return SegmentHeader{}, &HeaderError{Err: ErrBadMagic, Have: len(data)}
	}
	crc := binary.LittleEndian.Uint32(data[SegmentHeaderSize-CRCSize:])
	if ComputeChecksum(data[:SegmentHeaderSize-CRCSize]) != crc {
		return SegmentHeader{}, &HeaderError{Err: ErrHeaderChecksum, Have: len(data)}
	}

	h := SegmentHeader{
		Version:  binary.LittleEndian.Uint16(data[4:6]),
		Flags:    SegmentFlags(binary.LittleEndian.Uint16(data[6:8])),
		StartSeq: binary.LittleEndian.Uint64(data[8:16]),
		Created:  time.UnixMilli(int64(binary.LittleEndian.Uint64(data[16:24]))), //nolint:gosec
	}
	if h.Version == 0 || h.Version > FormatVersion {
		return SegmentHeader{}, &HeaderError{Err: ErrUnsupportedVersion, Version: h.Version, Have: len(data)}
	}
	if h.Flags&^knownFlags != 0 {
		return SegmentHeader{}, &HeaderError{Err: ErrUnsupportedVersion, Version: h.Version, Have: len(data)}
	}
	return h, nil
}

// ReadSegmentHeader reads and decodes the header at the current position of r.
// A stream shorter than a header is reported as ErrHeaderTruncated.
func ReadSegmentHeader(r io.Reader) (SegmentHeader, error) {
	buf := make([]byte, SegmentHeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if n < SegmentHeaderSize && (err == io.EOF || err == io.ErrUnexpectedEOF) {
			return SegmentHeader{}, &HeaderError{Err: ErrHeaderTruncated, Have: n}
		}
		return SegmentHeader{}, &ParseError{Kind: KindIO, Err: err}
	}
	return DecodeSegmentHeader(buf)
}
