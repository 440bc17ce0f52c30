package record

import (
	"fmt"

	"github.com/golang/snappy"
)

// CompressPayload compresses an operation payload for a segment created with
// FlagSnappy. Marker payloads are never compressed.
func CompressPayload(flags SegmentFlags, tag Tag, payload []byte) []byte {
	if flags&FlagSnappy == 0 || tag.IsMarker() {
		return payload
	}
	return snappy.Encode(nil, payload)
}

// DecompressPayload reverses CompressPayload. The decoded length is checked
// against MaxPayloadSize before any buffer is allocated.
func DecompressPayload(flags SegmentFlags, tag Tag, payload []byte) ([]byte, error) {
	if flags&FlagSnappy == 0 || tag.IsMarker() {
		return payload, nil
	}
	n, err := snappy.DecodedLen(payload)
	if err != nil {
		return nil, &CodecError{Kind: CodecCorrupt, Field: "payload", Err: fmt.Errorf("%w: %v", ErrCodecCorrupt, err)}
	}
	if n > MaxPayloadSize {
		return nil, &CodecError{Kind: CodecCorrupt, Field: "payload", Want: MaxPayloadSize, Have: n, Err: ErrCodecCorrupt}
	}
	out, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, &CodecError{Kind: CodecCorrupt, Field: "payload", Err: fmt.Errorf("%w: %v", ErrCodecCorrupt, err)}
	}
	return out, nil
}
