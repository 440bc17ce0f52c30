package op

import (
	"time"

	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// payloadHeaderSize is [mailbox_id (8)][timestamp_ms (8)].
const payloadHeaderSize = 16

// Encode serializes the mailbox id, timestamp and parameters of o.
// Format: [mailbox_id (8)][timestamp_ms (8)][params...]
func Encode(o Op) ([]byte, error) {
	h := o.Meta()
	if h.MailboxID == 0 {
		return nil, &record.CodecError{
			Kind:  record.CodecInvalid,
			Field: "mailbox_id",
			Err:   record.ErrCodecInvalid,
		}
	}

	enc := record.NewEncoder(payloadHeaderSize + 32)
	enc.U64(h.MailboxID)
	enc.I64(h.Timestamp.UnixMilli())
	o.encodeParams(enc)
	return enc.Bytes()
}

// Decode reconstructs the operation carried by an entry. An unregistered tag
// yields an *UnknownTagError; a malformed payload yields a *record.CodecError.
func Decode(tag record.Tag, txnID, seq uint64, payload []byte) (Op, error) {
	kind, ok := Lookup(tag)
	if !ok {
		return nil, &UnknownTagError{Tag: tag}
	}

	o := kind.New()
	dec := record.NewDecoder(payload)
	mailboxID := dec.U64("mailbox_id")
	ts := dec.I64("timestamp")
	o.decodeParams(dec)
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	if mailboxID == 0 {
		return nil, &record.CodecError{
			Kind:  record.CodecCorrupt,
			Field: "mailbox_id",
			Err:   record.ErrCodecCorrupt,
		}
	}

	*o.Meta() = Header{
		MailboxID: mailboxID,
		TxnID:     txnID,
		Seq:       seq,
		Timestamp: time.UnixMilli(ts),
	}
	return o, nil
}

// DecodeEntry decodes an operation entry read from a segment.
func DecodeEntry(e record.Entry) (Op, error) {
	return Decode(e.Tag, e.TxnID, e.Seq, e.Payload)
}
