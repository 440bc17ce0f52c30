package cli_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	tst "github.com/julianstephens/go-utils/tests"

	"github.com/julianstephens/redolog/internal/cli"
	"github.com/julianstephens/redolog/internal/redolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redolog.yaml")
	tst.RequireNoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOptions_Defaults(t *testing.T) {
	opts, err := cli.LoadOptions("")
	tst.RequireNoError(t, err)
	assert.Equal(t, redolog.DefaultOptions(), opts)
}

func TestLoadOptions_File(t *testing.T) {
	path := writeConfig(t, `
durability: batched
batch_entries: 64
batch_interval: 5ms
segment_max_bytes: 1048576
segment_max_age: 1h
compress: true
recovery_parallelism: 8
log_level: debug
`)
	opts, err := cli.LoadOptions(path)
	tst.RequireNoError(t, err)

	assert.Equal(t, redolog.DurabilityBatched, opts.Durability)
	assert.Equal(t, 64, opts.BatchEntries)
	assert.Equal(t, 5*time.Millisecond, opts.BatchInterval)
	assert.Equal(t, int64(1<<20), opts.SegmentMaxBytes)
	assert.Equal(t, time.Hour, opts.SegmentMaxAge)
	assert.True(t, opts.Compress)
	assert.Equal(t, 8, opts.RecoveryParallelism)
	assert.Equal(t, "debug", opts.LogLevel)
	// Unset keys keep their defaults.
	assert.Equal(t, redolog.DefaultLogMaxBackups, opts.LogMaxBak)
}

func TestLoadOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"UnknownDurability", "durability: weekly\n"},
		{"NegativeBatch", "batch_entries: -1\n"},
		{"NegativeSegmentSize", "segment_max_bytes: -5\n"},
		{"UnknownLogLevel", "log_level: chatty\n"},
		{"Malformed", "durability: [sync\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cli.LoadOptions(writeConfig(t, tc.body))
			assert.True(t, errors.Is(err, cli.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestLoadOptions_MissingFile(t *testing.T) {
	_, err := cli.LoadOptions(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.Is(err, cli.ErrInvalidConfig))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
