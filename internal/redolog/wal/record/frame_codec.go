package record

import (
	"encoding/binary"
	"io"
)

// EncodeFrame encodes one entry.
// Layout: [len (4)][tag (2)][txn_id (8)][seq (8)][payload_len (4)][payload][crc (4)]
// len counts tag through payload; the CRC covers the same bytes.
func EncodeFrame(tag Tag, txnID, seq uint64, payload []byte) ([]byte, error) {
	if err := ValidateFrame(tag, txnID, payload); err != nil {
		return nil, err
	}

	frameLen := uint32(FrameFixedBodySize + len(payload)) //nolint:gosec
	data := make([]byte, LengthPrefixSize+int(frameLen)+CRCSize)

	binary.LittleEndian.PutUint32(data[:LengthPrefixSize], frameLen)
	putFixedBody(data[LengthPrefixSize:], tag, txnID, seq, len(payload))
	copy(data[LengthPrefixSize+FrameFixedBodySize:], payload)

	crcIndex := LengthPrefixSize + int(frameLen)
	crc := ComputeChecksum(data[LengthPrefixSize:crcIndex])
	binary.LittleEndian.PutUint32(data[crcIndex:], crc)

	return data, nil
}

// DecodeFrame decodes exactly one frame from data.
func DecodeFrame(data []byte) (FramedEntry, error) {
	if len(data) < LengthPrefixSize {
		return FramedEntry{}, &ParseError{
			Kind: KindTruncated,
			Want: LengthPrefixSize,
			Have: len(data),
			Err:  io.ErrUnexpectedEOF,
		}
	}

	frameLen := binary.LittleEndian.Uint32(data[:LengthPrefixSize])
	if err := ValidateFrameLength(frameLen); err != nil {
		return FramedEntry{}, err
	}

	wantTotal := LengthPrefixSize + int(frameLen) + CRCSize
	if len(data) < wantTotal {
		return FramedEntry{}, &ParseError{
			Kind:        KindTruncated,
			DeclaredLen: frameLen,
			Want:        wantTotal,
			Have:        len(data),
			Err:         io.ErrUnexpectedEOF,
		}
	}
	if len(data) != wantTotal {
		return FramedEntry{}, &ParseError{
			Kind:        KindCorrupt,
			DeclaredLen: frameLen,
			Want:        wantTotal,
			Have:        len(data),
			Err:         ErrInvalidLength,
		}
	}

	entry, err := parseBody(frameLen, data[LengthPrefixSize:])
	if err != nil {
		return FramedEntry{}, err
	}

	return FramedEntry{
		Offset: 0,
		Size:   int64(wantTotal),
		Entry:  entry,
	}, nil
}

// parseBody parses [tag..payload][crc] given the already validated frame length.
func parseBody(frameLen uint32, body []byte) (Entry, error) {
	off := 0
	tag := Tag(binary.LittleEndian.Uint16(body[off:]))
	off += TagSize
	txnID := binary.LittleEndian.Uint64(body[off:])
	off += TxnIdSize
	seq := binary.LittleEndian.Uint64(body[off:])
	off += SeqSize
	payloadLen := binary.LittleEndian.Uint32(body[off:])
	off += PayloadLenSize

	if uint64(payloadLen)+FrameFixedBodySize != uint64(frameLen) {
		return Entry{}, &ParseError{
			Kind:        KindInvalidLength,
			DeclaredLen: frameLen,
			Tag:         tag,
			Want:        int(frameLen) - FrameFixedBodySize,
			Have:        int(payloadLen),
			Err:         ErrInvalidLength,
		}
	}

	entry := Entry{
		Len:     frameLen,
		Tag:     tag,
		TxnID:   txnID,
		Seq:     seq,
		Payload: body[off:frameLen],
		CRC:     binary.LittleEndian.Uint32(body[frameLen : frameLen+CRCSize]),
	}

	if !VerifyChecksum(&entry) {
		return Entry{}, &ParseError{
			Kind:        KindChecksumMismatch,
			DeclaredLen: frameLen,
			Tag:         tag,
			Err:         ErrChecksumMismatch,
		}
	}

	if tag.IsReserved() {
		return Entry{}, &ParseError{
			Kind:        KindInvalidType,
			DeclaredLen: frameLen,
			Tag:         tag,
			Err:         ErrInvalidType,
		}
	}

	return entry, nil
}
