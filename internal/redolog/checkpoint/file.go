package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/julianstephens/go-utils/helpers"
	"github.com/julianstephens/go-utils/jsonutil"
)

// CheckpointFileName is the FileStore file inside the log root.
const CheckpointFileName = "CHECKPOINTS.json"

const fileVersion = 1

type checkpointFile struct {
	Version   int               `json:"version"`
	Mailboxes map[string]uint64 `json:"mailboxes"`
}

// FileStore keeps every mailbox's checkpoint in one JSON file. Each Write
// rewrites the file atomically and syncs the parent directory.
type FileStore struct {
	mu   sync.Mutex
	path string
	seqs map[uint64]uint64
}

// OpenFileStore loads dir/CHECKPOINTS.json, creating dir if needed. A missing
// file is an empty store.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := helpers.Ensure(dir, true); err != nil {
		return nil, &StoreError{Op: "open", Backend: "file", Err: err}
	}
	s := &FileStore{
		path: filepath.Join(dir, CheckpointFileName),
		seqs: make(map[uint64]uint64),
	}
	if !helpers.Exists(s.path) {
		return s, nil
	}

	var cf checkpointFile
	if err := jsonutil.ReadFileStrict(s.path, &cf); err != nil {
		return nil, &StoreError{Op: "decode", Backend: "file", Err: err}
	}
	if cf.Version > fileVersion {
		return nil, &StoreError{Op: "decode", Backend: "file", Err: fmt.Errorf("unsupported version %d", cf.Version)}
	}
	for k, v := range cf.Mailboxes {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, &StoreError{Op: "decode", Backend: "file", Err: fmt.Errorf("bad mailbox key %q: %w", k, err)}
		}
		s.seqs[id] = v
	}
	return s, nil
}

// Path returns the checkpoint file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Read(_ context.Context, mailboxID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[mailboxID], nil
}

func (s *FileStore) Write(_ context.Context, mailboxID uint64, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.seqs[mailboxID]
	if err := checkMonotonic(mailboxID, cur, seq); err != nil {
		return err
	}
	if cur == seq && helpers.Exists(s.path) {
		return nil
	}

	s.seqs[mailboxID] = seq
	if err := s.persist(); err != nil {
		s.seqs[mailboxID] = cur
		return &StoreError{Op: "write", Backend: "file", MailboxID: mailboxID, Err: err}
	}
	return nil
}

func (s *FileStore) persist() error {
	cf := checkpointFile{Version: fileVersion, Mailboxes: make(map[string]uint64, len(s.seqs))}
	for id, seq := range s.seqs {
		cf.Mailboxes[strconv.FormatUint(id, 10)] = seq
	}
	data, err := jsonutil.Marshal(cf)
	if err != nil {
		return err
	}
	if err := helpers.AtomicFileWrite(s.path, data); err != nil {
		return err
	}

	d, err := os.Open(filepath.Dir(s.path)) //nolint:gosec
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

func (s *FileStore) Close() error { return nil }
