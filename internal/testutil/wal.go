package testutil

import (
	"fmt"
	"sync"

	"github.com/julianstephens/redolog/internal/redolog/wal/record"
)

// RecordedCall represents a recorded method call to a log appender
type RecordedCall struct {
	Method  string // "Append", "Flush", "FSync" or "Close"
	Tag     record.Tag
	TxnID   uint64
	Seq     uint64
	Payload []byte
}

// LogAppender is a wal.Appender that records every call. Sequence numbers
// follow the log's rules: operations consume the next number, markers report
// the current high-water mark.
type LogAppender struct {
	mu                sync.Mutex
	calls             []RecordedCall
	nextSeq           uint64
	failOnAppendIndex int // -1 means no failure
	failOnFlush       bool
	failOnFSync       bool
	failErr           error
}

// NewLogAppender creates a new test log appender whose first op gets seq 1
func NewLogAppender() *LogAppender {
	return NewLogAppenderAt(1)
}

// NewLogAppenderAt creates a test log appender whose first op gets nextSeq
func NewLogAppenderAt(nextSeq uint64) *LogAppender {
	return &LogAppender{
		calls:             make([]RecordedCall, 0),
		nextSeq:           nextSeq,
		failOnAppendIndex: -1,
	}
}

// SetFailOnAppend sets the append operation to fail at the given index
func (f *LogAppender) SetFailOnAppend(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnAppendIndex = index
}

// SetFailOnFlush sets the flush operation to fail
func (f *LogAppender) SetFailOnFlush(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnFlush = fail
}

// SetFailOnFSync sets the fsync operation to fail
func (f *LogAppender) SetFailOnFSync(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnFSync = fail
}

// SetFailErr replaces the generic injected error, e.g. with one that
// matches redolog.ErrIOFailure.
func (f *LogAppender) SetFailErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

func (f *LogAppender) fail(format string, args ...interface{}) error {
	if f.failErr != nil {
		return f.failErr
	}
	return fmt.Errorf(format, args...)
}

// Append records an append call and returns success or failure based on configuration
func (f *LogAppender) Append(tag record.Tag, txnID uint64, payload []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	appendIndex := 0
	for _, call := range f.calls {
		if call.Method == "Append" {
			appendIndex++
		}
	}
	if f.failOnAppendIndex == appendIndex {
		return 0, f.fail("append failed at index %d", appendIndex)
	}

	seq := f.nextSeq - 1
	if !tag.IsMarker() {
		seq = f.nextSeq
		f.nextSeq++
	}

	// Copy payload to avoid issues with reused buffers
	payloadCopy := make([]byte, len(payload))
	copy(payloadCopy, payload)

	f.calls = append(f.calls, RecordedCall{
		Method:  "Append",
		Tag:     tag,
		TxnID:   txnID,
		Seq:     seq,
		Payload: payloadCopy,
	})
	return seq, nil
}

// Flush records a flush call and returns success or failure based on configuration
func (f *LogAppender) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, RecordedCall{Method: "Flush"})
	if f.failOnFlush {
		return f.fail("flush failed")
	}
	return nil
}

// FSync records an fsync call and returns success or failure based on configuration
func (f *LogAppender) FSync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, RecordedCall{Method: "FSync"})
	if f.failOnFSync {
		return f.fail("fsync failed")
	}
	return nil
}

// Close records a close call
func (f *LogAppender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, RecordedCall{Method: "Close"})
	return nil
}

// Calls returns the recorded calls for inspection
func (f *LogAppender) Calls() []RecordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedCall(nil), f.calls...)
}

// Appends returns only the recorded Append calls
func (f *LogAppender) Appends() []RecordedCall {
	var out []RecordedCall
	for _, c := range f.Calls() {
		if c.Method == "Append" {
			out = append(out, c)
		}
	}
	return out
}

// Entries returns the appended entries as they would be framed in a log
func (f *LogAppender) Entries() []record.Entry {
	var out []record.Entry
	for _, c := range f.Appends() {
		out = append(out, record.Entry{Tag: c.Tag, TxnID: c.TxnID, Seq: c.Seq, Payload: c.Payload})
	}
	return out
}

// CallSequence returns the method names in call order, with the tag name for appends
func (f *LogAppender) CallSequence() []string {
	calls := f.Calls()
	seq := make([]string, len(calls))
	for i, call := range calls {
		if call.Method == "Append" {
			seq[i] = "Append:" + call.Tag.String()
			continue
		}
		seq[i] = call.Method
	}
	return seq
}
