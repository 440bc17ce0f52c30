package record_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

func TestSegmentHeader_RoundTrip(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_123)
	data := record.EncodeSegmentHeader(record.SegmentHeader{
		Flags:    record.FlagSnappy,
		StartSeq: 101,
		Created:  created,
	})
	assert.Equal(t, record.SegmentHeaderSize, len(data))

	h, err := record.ReadSegmentHeader(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.Equal(t, record.FormatVersion, h.Version)
	assert.Equal(t, uint64(101), h.StartSeq)
	assert.True(t, h.Compressed())
	assert.Equal(t, created.UnixMilli(), h.Created.UnixMilli())
}

func TestSegmentHeader_Errors(t *testing.T) {
	good := record.EncodeSegmentHeader(record.SegmentHeader{StartSeq: 1})

	badMagic := append([]byte(nil), good...)
	badMagic[0] ^= 0xFF

	badCRC := append([]byte(nil), good...)
	badCRC[10] ^= 0xFF

	future := record.EncodeSegmentHeader(record.SegmentHeader{Version: record.FormatVersion + 1, StartSeq: 1})
	unknownFlag := record.EncodeSegmentHeader(record.SegmentHeader{Flags: 0x8000, StartSeq: 1})

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"Truncated", good[:10], record.ErrHeaderTruncated},
		{"BadMagic", badMagic, record.ErrBadMagic},
		{"BadChecksum", badCRC, record.ErrHeaderChecksum},
		{"FutureVersion", future, record.ErrUnsupportedVersion},
		{"UnknownFlag", unknownFlag, record.ErrUnsupportedVersion},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := record.ReadSegmentHeader(bytes.NewReader(tc.data))
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.True(t, errors.Is(err, redolog.ErrCorruptLog))
		})
	}
}

func TestCompressPayload_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("inbox "), 200)

	compressed := record.CompressPayload(record.FlagSnappy, record.FirstOpTag, payload)
	assert.True(t, len(compressed) < len(payload))

	out, err := record.DecompressPayload(record.FlagSnappy, record.FirstOpTag, compressed)
	assert.NoError(t, err)
	assert.Equal(t, payload, out)

	marker := record.EncodeMarkerPayload(9)
	assert.Equal(t, marker, record.CompressPayload(record.FlagSnappy, record.TagCommit, marker))
	assert.Equal(t, payload, record.CompressPayload(0, record.FirstOpTag, payload))
}

func TestDecompressPayload_Garbage(t *testing.T) {
	_, err := record.DecompressPayload(record.FlagSnappy, record.FirstOpTag, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	assert.True(t, errors.Is(err, redolog.ErrCorruptLog))
}
