package record

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Helpers

func need(data []byte, at, want int, field string) error {
	if at < 0 {
		at = 0
	}
	have := len(data) - at
	if have >= want {
		return nil
	}
	return &CodecError{
		Kind:  CodecTruncated,
		Field: field,
		At:    at,
		Want:  want,
		Have:  have,
		Err:   ErrCodecTruncated,
	}
}

func rejectTrailing(data []byte, expectedLen int, field string) error {
	if len(data) == expectedLen {
		return nil
	}
	return &CodecError{
		Kind:  CodecCorrupt,
		Field: field,
		At:    expectedLen,
		Want:  expectedLen,
		Have:  len(data),
		Err:   fmt.Errorf("%w: trailing bytes", ErrCodecCorrupt),
	}
}

// Encoder builds an operation payload. Integers are little-endian and fixed
// width; strings are [len (4)][utf-8 bytes]; id lists are [count (4)][i32...].
// The first error is latched and returned by Bytes.
type Encoder struct {
	buf []byte
	err error
}

// NewEncoder returns an Encoder with sizeHint bytes preallocated.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

func (e *Encoder) U8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

func (e *Encoder) U16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) U32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) I32(v int32) {
	e.U32(uint32(v)) //nolint:gosec
}

func (e *Encoder) U64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) I64(v int64) {
	e.U64(uint64(v)) //nolint:gosec
}

func (e *Encoder) String(field, s string) {
	if e.err != nil {
		return
	}
	if len(s) > MaxStringSize {
		e.err = &CodecError{Kind: CodecInvalid, Field: field, At: len(e.buf), Want: MaxStringSize, Have: len(s), Err: ErrCodecInvalid}
		return
	}
	if !utf8.ValidString(s) {
		e.err = &CodecError{Kind: CodecInvalid, Field: field, At: len(e.buf), Err: fmt.Errorf("%w: invalid utf-8", ErrCodecInvalid)}
		return
	}
	e.U32(uint32(len(s))) //nolint:gosec
	e.buf = append(e.buf, s...)
}

func (e *Encoder) I32List(field string, ids []int32) {
	if e.err != nil {
		return
	}
	if len(ids) > MaxListLen {
		e.err = &CodecError{Kind: CodecInvalid, Field: field, At: len(e.buf), Want: MaxListLen, Have: len(ids), Err: ErrCodecInvalid}
		return
	}
	e.U32(uint32(len(ids))) //nolint:gosec
	for _, id := range ids {
		e.I32(id)
	}
}

// Fail latches err unless an earlier error is already latched.
func (e *Encoder) Fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Bytes returns the encoded payload or the first latched error.
func (e *Encoder) Bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// Decoder reads an operation payload written by Encoder. Every length prefix
// is checked against the remaining bytes before anything is allocated. The
// first error is latched; later reads return zero values.
type Decoder struct {
	data []byte
	off  int
	err  error
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) take(n int, field string) []byte {
	if d.err != nil {
		return nil
	}
	if err := need(d.data, d.off, n, field); err != nil {
		d.err = err
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *Decoder) U8(field string) uint8 {
	b := d.take(1, field)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads one byte that must be exactly 0 or 1.
func (d *Decoder) Bool(field string) bool {
	at := d.off
	v := d.U8(field)
	if d.err != nil {
		return false
	}
	if v > 1 {
		d.err = &CodecError{Kind: CodecCorrupt, Field: field, At: at, Want: 1, Have: int(v), Err: fmt.Errorf("%w: bool out of range", ErrCodecCorrupt)}
		return false
	}
	return v == 1
}

func (d *Decoder) U16(field string) uint16 {
	b := d.take(2, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) U32(field string) uint32 {
	b := d.take(4, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) I32(field string) int32 {
	return int32(d.U32(field)) //nolint:gosec
}

func (d *Decoder) U64(field string) uint64 {
	b := d.take(8, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) I64(field string) int64 {
	return int64(d.U64(field)) //nolint:gosec
}

func (d *Decoder) String(field string) string {
	at := d.off
	n := d.U32(field + "_len")
	if d.err != nil {
		return ""
	}
	if n > MaxStringSize {
		d.err = &CodecError{Kind: CodecCorrupt, Field: field + "_len", At: at, Want: MaxStringSize, Have: int(n), Err: ErrCodecCorrupt}
		return ""
	}
	b := d.take(int(n), field)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		d.err = &CodecError{Kind: CodecCorrupt, Field: field, At: at, Err: fmt.Errorf("%w: invalid utf-8", ErrCodecCorrupt)}
		return ""
	}
	return string(b)
}

func (d *Decoder) I32List(field string) []int32 {
	at := d.off
	n := d.U32(field + "_count")
	if d.err != nil {
		return nil
	}
	if n > MaxListLen {
		d.err = &CodecError{Kind: CodecCorrupt, Field: field + "_count", At: at, Want: MaxListLen, Have: int(n), Err: ErrCodecCorrupt}
		return nil
	}
	// Validate the whole list fits before allocating it.
	if err := need(d.data, d.off, int(n)*4, field); err != nil {
		d.err = err
		return nil
	}
	ids := make([]int32, n)
	for i := range ids {
		ids[i] = d.I32(field)
	}
	return ids
}

// Fail latches err unless an earlier error is already latched.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

// Err returns the first latched error.
func (d *Decoder) Err() error {
	return d.err
}

// Finish returns the latched error, or a corruption error if any bytes remain.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	return rejectTrailing(d.data, d.off, "payload_length")
}
