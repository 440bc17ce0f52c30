package record

import (
	"encoding/binary"
	"errors"
	"io"
)

var ErrReaderInvalidSeek = errors.New("record: reader cannot seek backwards")

// FrameReader reads consecutive frames from a stream that is positioned at a
// frame boundary.
type FrameReader struct {
	r      io.Reader
	offset int64
}

// NewFrameReader creates a FrameReader whose offsets start at base (the byte
// position of r inside the segment).
func NewFrameReader(r io.Reader, base int64) *FrameReader {
	return &FrameReader{
		r:      r,
		offset: base,
	}
}

// Next reads the next frame. It returns io.EOF at a clean frame boundary,
// a *ParseError of kind KindTruncated when the stream ends inside a frame,
// and another *ParseError kind for corruption.
func (fr *FrameReader) Next() (FramedEntry, error) {
	frameStart := fr.offset

	hdr := make([]byte, LengthPrefixSize)
	n, err := io.ReadFull(fr.r, hdr)
	if err != nil {
		fr.offset += int64(n)
		if errors.Is(err, io.EOF) && n == 0 {
			return FramedEntry{}, io.EOF
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			return FramedEntry{}, ioParseError(frameStart, err)
		}
		return FramedEntry{}, &ParseError{
			Kind:               KindTruncated,
			Offset:             frameStart,
			SafeTruncateOffset: frameStart,
			Want:               LengthPrefixSize,
			Have:               n,
			Err:                io.ErrUnexpectedEOF,
		}
	}

	frameLen := binary.LittleEndian.Uint32(hdr)
	if err = ValidateFrameLength(frameLen); err != nil {
		if pe, ok := AsParseError(err); ok {
			pe.Offset = frameStart
			pe.SafeTruncateOffset = frameStart
			return FramedEntry{}, pe
		}
		return FramedEntry{}, err
	}

	// Length is bounded by MaxFrameSize, so this allocation is bounded too.
	body := make([]byte, int(frameLen)+CRCSize)
	n, err = io.ReadFull(fr.r, body)
	if err != nil {
		fr.offset += int64(LengthPrefixSize + n)
		if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return FramedEntry{}, ioParseError(frameStart, err)
		}
		return FramedEntry{}, &ParseError{
			Kind:               KindTruncated,
			Offset:             frameStart,
			SafeTruncateOffset: frameStart,
			DeclaredLen:        frameLen,
			Want:               int(frameLen) + CRCSize,
			Have:               n,
			Err:                io.ErrUnexpectedEOF,
		}
	}
	fr.offset += int64(LengthPrefixSize + len(body))

	entry, err := parseBody(frameLen, body)
	if err != nil {
		if pe, ok := AsParseError(err); ok {
			pe.Offset = frameStart
			pe.SafeTruncateOffset = frameStart
			return FramedEntry{}, pe
		}
		return FramedEntry{}, err
	}

	return FramedEntry{
		Offset: frameStart,
		Size:   int64(LengthPrefixSize) + int64(len(body)),
		Entry:  entry,
	}, nil
}

// Offset returns the current offset in the underlying segment.
func (fr *FrameReader) Offset() int64 {
	return fr.offset
}

func ioParseError(at int64, err error) *ParseError {
	return &ParseError{
		Kind:               KindIO,
		Offset:             at,
		SafeTruncateOffset: at,
		Err:                err,
	}
}
