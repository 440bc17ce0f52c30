package record

import "encoding/binary"

// EncodeMarkerPayload encodes the payload of a START/COMMIT/ABORT frame.
// Format: [txn_id (8)]
func EncodeMarkerPayload(txnID uint64) []byte {
	payload := make([]byte, MarkerPayloadSize)
	binary.LittleEndian.PutUint64(payload, txnID)
	return payload
}

// DecodeMarkerPayload decodes the payload of a START/COMMIT/ABORT frame.
// Format: [txn_id (8)]
func DecodeMarkerPayload(data []byte) (*MarkerPayload, error) {
	d := NewDecoder(data)
	txnID := d.U64("txn_id")
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return &MarkerPayload{TxnID: txnID}, nil
}

// EncodeMarker encodes a complete marker frame for txnID. seq records the
// sequence high-water mark at the time the marker was written.
func EncodeMarker(tag Tag, txnID, seq uint64) ([]byte, error) {
	if !tag.IsMarker() {
		return nil, &FrameError{Tag: tag, TxnID: txnID, Err: ErrInvalidType}
	}
	return EncodeFrame(tag, txnID, seq, EncodeMarkerPayload(txnID))
}
