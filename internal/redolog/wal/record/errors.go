package record

import (
	"errors"
	"fmt"
	"io"

	"github.com/julianstephens/redolog/internal/redolog"
)

var (
	ErrTruncated        = errors.New("record: truncated")
	ErrCorrupt          = errors.New("record: corrupt")
	ErrTooLarge         = errors.New("record: too large")
	ErrInvalidType      = errors.New("record: invalid tag")
	ErrInvalidLength    = errors.New("record: invalid length")
	ErrChecksumMismatch = errors.New("record: checksum mismatch")
	ErrInvalidTxnID     = errors.New("record: invalid txn id")
	// ErrInvalidFrame reports an entry rejected before it was encoded.
	ErrInvalidFrame = errors.New("record: invalid frame")
)

type ParseErrorKind uint8

const (
	KindTruncated ParseErrorKind = iota
	KindInvalidLength
	KindTooLarge
	KindChecksumMismatch
	KindInvalidType
	KindCorrupt
	KindIO
)

func (k ParseErrorKind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindInvalidLength:
		return "invalid_length"
	case KindTooLarge:
		return "too_large"
	case KindInvalidType:
		return "invalid_type"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	case KindCorrupt:
		return "corrupt"
	case KindIO:
		return "io_error"
	default:
		return "unknown"
	}
}

type ParseError struct {
	Kind ParseErrorKind
	// Offset is the starting byte offset of the frame (at the length prefix)
	Offset int64
	// SafeTruncateOffset is the byte offset where it is safe to truncate the
	// segment to remove the invalid tail. For frame-level parse failures this
	// equals Offset.
	SafeTruncateOffset int64
	DeclaredLen        uint32
	Tag                Tag
	Want               int
	Have               int
	Err                error
}

func (e *ParseError) Error() string {
	cause := "<nil>"
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return fmt.Sprintf("record parse error kind=%s offset=%d safe=%d len=%d tag=%d want=%d have=%d: %s",
		e.Kind.String(), e.Offset, e.SafeTruncateOffset, e.DeclaredLen, e.Tag, e.Want, e.Have, cause)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrTruncated, redolog.ErrTruncatedTail:
		return e.Kind == KindTruncated
	case ErrInvalidLength:
		return e.Kind == KindInvalidLength
	case ErrTooLarge:
		return e.Kind == KindTooLarge
	case ErrInvalidType:
		return e.Kind == KindInvalidType
	case ErrChecksumMismatch:
		return e.Kind == KindChecksumMismatch
	case ErrCorrupt:
		return e.Kind == KindCorrupt
	case redolog.ErrCorruptLog:
		return e.Kind != KindTruncated && e.Kind != KindIO
	case redolog.ErrIOFailure:
		return e.Kind == KindIO
	}
	return false
}

// FrameError reports an entry that cannot be written. Nothing reached the
// log, so it never matches redolog.ErrCorruptLog.
type FrameError struct {
	Tag   Tag
	TxnID uint64
	Want  int
	Have  int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("record: invalid frame tag=%d txn=%d want=%d have=%d: %v", e.Tag, e.TxnID, e.Want, e.Have, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

func (e *FrameError) Is(target error) bool {
	return target == ErrInvalidFrame
}

func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsCleanEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

func IsTruncation(err error) bool {
	return errors.Is(err, ErrTruncated)
}

func IsCorruption(err error) bool {
	return errors.Is(err, redolog.ErrCorruptLog)
}

var (
	ErrCodecTruncated = errors.New("record: codec truncated payload")
	ErrCodecCorrupt   = errors.New("record: codec corrupt payload")
	ErrCodecInvalid   = errors.New("record: codec invalid payload")
)

type CodecErrorKind uint8

const (
	CodecTruncated CodecErrorKind = iota
	CodecCorrupt
	CodecInvalid
)

func (k CodecErrorKind) String() string {
	switch k {
	case CodecTruncated:
		return "truncated"
	case CodecCorrupt:
		return "corrupt"
	case CodecInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// CodecError reports a payload that cannot be encoded or decoded. Inside a
// complete frame a truncated payload is corruption, not a torn tail, so every
// CodecError decoded from a log matches redolog.ErrCorruptLog.
type CodecError struct {
	Kind  CodecErrorKind
	Field string // "txn_id", "grantee", "rights", etc.
	At    int    // byte offset within payload where failure occurred
	Want  int
	Have  int
	Err   error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("record: codec %s field=%s at=%d want=%d have=%d: %v",
		e.Kind.String(), e.Field, e.At, e.Want, e.Have, e.Err,
	)
}

func (e *CodecError) Unwrap() error { return e.Err }

func (e *CodecError) Is(target error) bool {
	switch target {
	case ErrCodecTruncated:
		return e.Kind == CodecTruncated
	case ErrCodecCorrupt:
		return e.Kind == CodecCorrupt
	case ErrCodecInvalid:
		return e.Kind == CodecInvalid
	case redolog.ErrCorruptLog:
		return true
	default:
		return false
	}
}

var (
	ErrBadMagic           = errors.New("record: bad segment magic")
	ErrUnsupportedVersion = errors.New("record: unsupported segment format version")
	ErrHeaderChecksum     = errors.New("record: segment header checksum mismatch")
	ErrHeaderTruncated    = errors.New("record: segment header truncated")
)

// HeaderError reports an unreadable segment header.
type HeaderError struct {
	Err     error
	Version uint16
	Have    int
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("record: segment header: %v (version=%d have=%d)", e.Err, e.Version, e.Have)
}

func (e *HeaderError) Unwrap() error { return e.Err }

func (e *HeaderError) Is(target error) bool {
	return target == redolog.ErrCorruptLog
}
