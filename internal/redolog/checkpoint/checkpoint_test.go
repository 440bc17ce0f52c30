package checkpoint_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tst "github.com/julianstephens/go-utils/tests"

	"github.com/julianstephens/redolog/internal/redolog/checkpoint"
)

// testStoreContract runs the behavior every backend must share.
func testStoreContract(t *testing.T, s checkpoint.Store) {
	t.Helper()
	testStoreContractFrom(t, s, 42)
}

// testStoreContractFrom uses mailboxes base and base+1.
func testStoreContractFrom(t *testing.T, s checkpoint.Store, base uint64) {
	t.Helper()
	ctx := context.Background()

	seq, err := s.Read(ctx, base)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, seq, uint64(0))

	tst.RequireNoError(t, s.Write(ctx, base, 100))
	tst.RequireNoError(t, s.Write(ctx, base, 100))
	tst.RequireNoError(t, s.Write(ctx, base+1, 7))

	seq, err = s.Read(ctx, base)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, seq, uint64(100))

	err = s.Write(ctx, base, 99)
	tst.AssertTrue(t, errors.Is(err, checkpoint.ErrRegression), "expected regression, got %v", err)

	seq, err = s.Read(ctx, base)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, seq, uint64(100))

	tst.RequireNoError(t, s.Write(ctx, base, 101))
	seq, err = s.Read(ctx, base)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, seq, uint64(101))

	seq, err = s.Read(ctx, base+1)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, seq, uint64(7))
}

func TestMemStore(t *testing.T) {
	s := checkpoint.NewMemStore()
	testStoreContract(t, s)

	tst.RequireNoError(t, s.Close())
	_, err := s.Read(context.Background(), 1)
	tst.AssertTrue(t, errors.Is(err, checkpoint.ErrClosed), "expected ErrClosed")
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := checkpoint.OpenFileStore(dir)
	tst.RequireNoError(t, err)
	testStoreContract(t, s)
	tst.RequireNoError(t, s.Close())

	// Reopen and confirm the values persisted.
	s, err = checkpoint.OpenFileStore(dir)
	tst.RequireNoError(t, err)
	seq, err := s.Read(context.Background(), 42)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, seq, uint64(101))
	tst.RequireDeepEqual(t, s.Path(), filepath.Join(dir, checkpoint.CheckpointFileName))
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	tst.RequireNoError(t, os.WriteFile(filepath.Join(dir, checkpoint.CheckpointFileName), []byte("{not json"), 0o600))

	_, err := checkpoint.OpenFileStore(dir)
	var se *checkpoint.StoreError
	tst.AssertTrue(t, errors.As(err, &se), "expected StoreError, got %v", err)
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	s, err := checkpoint.OpenBoltStore(path)
	tst.RequireNoError(t, err)
	testStoreContract(t, s)

	all, err := s.All(context.Background())
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, all, map[uint64]uint64{42: 101, 43: 7})
	tst.RequireNoError(t, s.Close())

	s, err = checkpoint.OpenBoltStore(path)
	tst.RequireNoError(t, err)
	defer func() { _ = s.Close() }()
	seq, err := s.Read(context.Background(), 43)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, seq, uint64(7))
}

// TestPGStore needs a scratch database named by REDOLOG_TEST_DATABASE_URL.
func TestPGStore(t *testing.T) {
	url := os.Getenv("REDOLOG_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("REDOLOG_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := checkpoint.NewPGStore(ctx, url)
	tst.RequireNoError(t, err)
	defer func() { _ = s.Close() }()

	tst.RequireNoError(t, s.Ping(ctx))
	testStoreContractFrom(t, s, uint64(time.Now().UnixNano()))
}
