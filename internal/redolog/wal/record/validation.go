package record

const (
	LengthPrefixSize = 4 // Length of the frame length field
	TagSize          = 2 // Length of the tag field
	TxnIdSize        = 8 // Size of Transaction ID field (uint64)
	SeqSize          = 8 // Size of the sequence number field (uint64)
	PayloadLenSize   = 4 // Size of the payload length prefix
	CRCSize          = 4 // Length of the CRC32-C field

	// FrameFixedBodySize is the part of a frame covered by the length prefix
	// that does not depend on the payload.
	FrameFixedBodySize = TagSize + TxnIdSize + SeqSize + PayloadLenSize

	MaxFrameSize      = 16 * 1024 * 1024 // 16 MB
	MaxPayloadSize    = MaxFrameSize - FrameFixedBodySize
	MaxStringSize     = 64 * 1024 // 64 KB
	MaxListLen        = 64 * 1024 // max ids in one list field
	MarkerPayloadSize = TxnIdSize
)

// ValidateFrameLength checks a declared frame length before anything is
// allocated for it.
func ValidateFrameLength(length uint32) error {
	if length < FrameFixedBodySize {
		return &ParseError{
			Kind:        KindInvalidLength,
			DeclaredLen: length,
			Want:        FrameFixedBodySize,
			Have:        int(length),
			Err:         ErrInvalidLength,
		}
	}

	if length > MaxFrameSize {
		return &ParseError{
			Kind:        KindTooLarge,
			DeclaredLen: length,
			Want:        MaxFrameSize,
			Have:        int(length),
			Err:         ErrTooLarge,
		}
	}
	return nil
}

// ValidateFrame validates the tag and payload of an entry about to be
// encoded. Failures are *FrameError, not log corruption.
func ValidateFrame(tag Tag, txnID uint64, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &FrameError{Tag: tag, TxnID: txnID, Want: MaxPayloadSize, Have: len(payload), Err: ErrTooLarge}
	}
	if tag.IsReserved() {
		return &FrameError{Tag: tag, TxnID: txnID, Err: ErrInvalidType}
	}
	if tag.IsMarker() && len(payload) != MarkerPayloadSize {
		return &FrameError{Tag: tag, TxnID: txnID, Want: MarkerPayloadSize, Have: len(payload), Err: ErrInvalidLength}
	}
	if txnID == 0 {
		return &FrameError{Tag: tag, Err: ErrInvalidTxnID}
	}
	return nil
}

// EncodedFrameSize returns the on-disk size of a frame carrying payloadLen bytes.
func EncodedFrameSize(payloadLen int) int64 {
	return LengthPrefixSize + FrameFixedBodySize + int64(payloadLen) + CRCSize
}
