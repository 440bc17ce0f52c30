package record

// Tag identifies the kind of a log entry. Values 1-3 are transaction markers,
// 4-15 are reserved, and operation tags start at FirstOpTag. A tag is never
// reused once assigned, even after the operation kind is retired.
type Tag uint16

const (
	TagInvalid Tag = iota
	TagStart
	TagCommit
	TagAbort

	// FirstOpTag is the lowest tag an operation kind may use.
	FirstOpTag Tag = 16
)

// IsMarker reports whether t is a START, COMMIT or ABORT marker.
func (t Tag) IsMarker() bool {
	return t == TagStart || t == TagCommit || t == TagAbort
}

// IsReserved reports whether t can never appear in a well-formed segment.
func (t Tag) IsReserved() bool {
	return t == TagInvalid || (t > TagAbort && t < FirstOpTag)
}

func (t Tag) String() string {
	switch t {
	case TagStart:
		return "START"
	case TagCommit:
		return "COMMIT"
	case TagAbort:
		return "ABORT"
	case TagInvalid:
		return "INVALID"
	default:
		if t.IsReserved() {
			return "RESERVED"
		}
		return "OP"
	}
}

// Entry is one decoded frame.
type Entry struct {
	Tag     Tag    `json:"tag"`
	TxnID   uint64 `json:"txn_id"`
	Seq     uint64 `json:"seq"`
	Payload []byte `json:"payload"`
	CRC     uint32 `json:"crc"`
	// The length of tag + txn + seq + payload length + payload (excluding the
	// length prefix itself and the CRC)
	Len uint32 `json:"len"`
}

// FramedEntry is an Entry plus its position inside a segment.
type FramedEntry struct {
	Entry  Entry `json:"entry"`
	Size   int64 `json:"size"`
	Offset int64 `json:"offset"`
}

// End returns the offset just past this frame.
func (f FramedEntry) End() int64 {
	return f.Offset + f.Size
}

// MarkerPayload is the payload of a START/COMMIT/ABORT frame.
type MarkerPayload struct {
	TxnID uint64 `json:"txn_id"`
}
