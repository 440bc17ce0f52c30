package record

import (
	"encoding/binary"

	"github.com/julianstephens/go-utils/checksum"
)

// ComputeChecksum computes the CRC32-C checksum with the Castagnoli polynomial for the given data.
func ComputeChecksum(data []byte) uint32 {
	return checksum.CRC32C(data)
}

// VerifyChecksum reports whether entry.CRC matches the checksummed region
// (tag, txn, seq, payload length, payload) of the entry.
func VerifyChecksum(entry *Entry) bool {
	if entry == nil {
		return false
	}
	return checksum.VerifyCRC32C(checksummedBytes(entry), entry.CRC)
}

// UpdateChecksum recalculates entry.CRC from its current fields.
func UpdateChecksum(entry *Entry) {
	if entry == nil {
		return
	}
	entry.CRC = ComputeChecksum(checksummedBytes(entry))
}

func checksummedBytes(entry *Entry) []byte {
	data := make([]byte, FrameFixedBodySize+len(entry.Payload))
	putFixedBody(data, entry.Tag, entry.TxnID, entry.Seq, len(entry.Payload))
	copy(data[FrameFixedBodySize:], entry.Payload)
	return data
}

func putFixedBody(data []byte, tag Tag, txnID, seq uint64, payloadLen int) {
	off := 0
	binary.LittleEndian.PutUint16(data[off:], uint16(tag))
	off += TagSize
	binary.LittleEndian.PutUint64(data[off:], txnID)
	off += TxnIdSize
	binary.LittleEndian.PutUint64(data[off:], seq)
	off += SeqSize
	binary.LittleEndian.PutUint32(data[off:], uint32(payloadLen)) //nolint:gosec
}
