package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	tst "github.com/julianstephens/go-utils/tests"
)

func newBufferLogger(level Level) (*ConsoleLogger, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &ConsoleLogger{minLevel: level, out: out, err: errOut}, out, errOut
}

// TestConsoleLogger_LevelFiltering tests which calls each minimum level lets through
func TestConsoleLogger_LevelFiltering(t *testing.T) {
	testCases := []struct {
		level Level
		want  []string
	}{
		{LevelDebug, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{LevelInfo, []string{"INFO", "WARN", "ERROR"}},
		{LevelWarn, []string{"WARN", "ERROR"}},
		{LevelError, []string{"ERROR"}},
	}
	for _, tc := range testCases {
		t.Run(tc.level.String(), func(t *testing.T) {
			cl, out, errOut := newBufferLogger(tc.level)
			cl.Debug("d")
			cl.Info("i")
			cl.Warn("w")
			cl.Error("e", errors.New("boom"))

			var got []string
			for _, line := range strings.Split(strings.TrimSpace(out.String()+errOut.String()), "\n") {
				if line == "" {
					continue
				}
				fields := strings.Fields(line)
				got = append(got, strings.TrimSuffix(fields[1], ":"))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

// TestConsoleLogger_LineFormat tests the timestamp, level, message and field layout
func TestConsoleLogger_LineFormat(t *testing.T) {
	cl, out, _ := newBufferLogger(LevelInfo)
	cl.Info("redo applied", "mailbox", 42, "op", "GrantAccess", "seq", 101, "txn", 7)

	line := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}(Z|[+-]\d{2}:\d{2})\] INFO: redo applied mailbox=42 op=GrantAccess seq=101 txn=7\n$`)
	tst.AssertTrue(t, line.MatchString(out.String()), "unexpected line: %q", out.String())
}

// TestConsoleLogger_OddFieldDropped tests that a trailing key without value is ignored
func TestConsoleLogger_OddFieldDropped(t *testing.T) {
	cl, out, _ := newBufferLogger(LevelInfo)
	cl.Info("scan", "seg", 3, "dangling")
	tst.AssertTrue(t, strings.HasSuffix(out.String(), "scan seg=3\n"), "unexpected line: %q", out.String())
}

// TestConsoleLogger_ErrorToStderr tests that errors go to stderr with the error field first
func TestConsoleLogger_ErrorToStderr(t *testing.T) {
	cl, out, errOut := newBufferLogger(LevelInfo)

	cl.Info("replay started")
	cl.Error("replay failed", errors.New("checksum mismatch"), "mailbox", 9)

	tst.AssertTrue(t, strings.Contains(out.String(), "replay started"), "expected info on stdout")
	tst.AssertTrue(t, !strings.Contains(out.String(), "replay failed"), "error leaked to stdout")
	tst.AssertTrue(t, strings.Contains(errOut.String(), "error=checksum mismatch mailbox=9"), "unexpected stderr: %q", errOut.String())
}

// TestNewConsoleLogger_DefaultLevel tests that an empty level means info
func TestNewConsoleLogger_DefaultLevel(t *testing.T) {
	cl, ok := NewConsoleLogger("").(*ConsoleLogger)
	tst.AssertTrue(t, ok, "expected ConsoleLogger type")
	assert.Equal(t, LevelInfo, cl.minLevel)
}

// TestFileLogger_WritesJSON tests directory creation and the JSON entries written
func TestFileLogger_WritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "redo")
	lg, err := NewFileLogger(FileConfig{Dir: dir, FileName: "redolog.log", MaxSizeMB: 1, MaxBackups: 2, Level: "warn"})
	tst.RequireNoError(t, err)

	fl := lg.(*FileLogger)
	assert.Equal(t, filepath.Join(dir, "redolog.log"), fl.Path())

	fl.Info("hidden at warn")
	fl.Warn("tail repaired", "mailbox", 42, "seg", 7)
	tst.RequireNoError(t, fl.Close())

	content, err := os.ReadFile(fl.Path()) // nolint:gosec
	tst.RequireNoError(t, err)
	output := string(content)
	tst.AssertTrue(t, strings.Contains(output, "tail repaired"), "expected warn entry")
	tst.AssertTrue(t, strings.Contains(output, `"mailbox"`), "expected mailbox field")
	tst.AssertTrue(t, !strings.Contains(output, "hidden at warn"), "info entry written at warn level")
}

// TestFileLogger_UnusableDir tests that a file in place of the log dir is reported
func TestFileLogger_UnusableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	tst.RequireNoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	dir := filepath.Join(blocker, "logs")
	_, err := NewFileLogger(FileConfig{Dir: dir, FileName: "redolog.log"})
	assert.True(t, errors.Is(err, ErrLogDir))

	var lerr *LoggerError
	assert.True(t, errors.As(err, &lerr))
	assert.Equal(t, dir, lerr.Path)
	tst.AssertTrue(t, strings.Contains(err.Error(), "path="+dir), "expected path in message: %s", err)
}

type failingCloser struct {
	NoOpLogger
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("sink gone")
}

// TestMultiLogger_FansOut tests that every method reaches every logger
func TestMultiLogger_FansOut(t *testing.T) {
	a, outA, errA := newBufferLogger(LevelDebug)
	b, outB, errB := newBufferLogger(LevelDebug)
	ml := NewMultiLogger(a, b)

	ml.Debug("d")
	ml.Info("i")
	ml.Warn("w")
	ml.Error("e", errors.New("x"))

	for _, buf := range []*bytes.Buffer{outA, outB} {
		assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
	}
	for _, buf := range []*bytes.Buffer{errA, errB} {
		assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	}
}

// TestMultiLogger_CloseJoinsFailures tests that Close reaches every logger and reports each failure
func TestMultiLogger_CloseJoinsFailures(t *testing.T) {
	fl, err := NewFileLogger(FileConfig{Dir: t.TempDir(), FileName: "redolog.log"})
	tst.RequireNoError(t, err)
	first, second := &failingCloser{}, &failingCloser{}

	ml := NewMultiLogger(first, fl, NoOpLogger{}, second)
	c, ok := ml.(Closeable)
	tst.AssertTrue(t, ok, "expected MultiLogger to implement Closeable")

	err = c.Close()
	assert.True(t, errors.Is(err, ErrLogClose))
	assert.Equal(t, 2, strings.Count(err.Error(), "sink gone"))
	tst.AssertTrue(t, first.closed && second.closed, "expected every logger closed")

	tst.RequireNoError(t, NewMultiLogger(NoOpLogger{}).(Closeable).Close())
}

// TestParseLevel tests level names and the info fallback
func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

// TestWith_PrependsFields tests that bound fields appear before call fields
func TestWith_PrependsFields(t *testing.T) {
	cl, out, errOut := newBufferLogger(LevelDebug)

	lg := With(With(cl, "mailbox", 42), "segment", 100)
	lg.Info("scan", "offset", 28)
	lg.Error("scan failed", errors.New("eof"), "offset", 56)

	tst.AssertTrue(t, strings.Contains(out.String(), "mailbox=42 segment=100 offset=28"), "unexpected field order: %s", out.String())
	tst.AssertTrue(t, strings.Contains(errOut.String(), "error=eof mailbox=42 segment=100 offset=56"), "unexpected field order: %s", errOut.String())
}

// TestWith_NilLogger tests that a nil logger becomes a no-op
func TestWith_NilLogger(t *testing.T) {
	lg := With(nil, "k", "v")
	lg.Info("nothing")
	_, ok := OrNoOp(nil).(NoOpLogger)
	tst.AssertTrue(t, ok, "expected NoOpLogger")
}
