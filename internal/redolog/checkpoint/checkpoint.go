// Package checkpoint persists, per mailbox, the highest sequence number whose
// effects are known to be durable in the mailbox store. Replay skips every
// operation at or below it.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/julianstephens/redolog/internal/redolog"
)

var (
	ErrRegression = errors.New("checkpoint: sequence regression")
	ErrClosed     = errors.New("checkpoint: store closed")
)

// Store reads and writes checkpoints. Read returns 0 for a mailbox that has
// never been checkpointed. Write is monotonic: writing the current value is a
// no-op and writing a lower one fails with ErrRegression.
type Store interface {
	Read(ctx context.Context, mailboxID uint64) (uint64, error)
	Write(ctx context.Context, mailboxID uint64, seq uint64) error
	Close() error
}

// RegressionError reports an attempt to move a checkpoint backwards.
type RegressionError struct {
	MailboxID uint64
	Current   uint64
	Requested uint64
}

func (e *RegressionError) Error() string {
	return fmt.Sprintf("checkpoint: mbox=%d regression from %d to %d", e.MailboxID, e.Current, e.Requested)
}

func (e *RegressionError) Is(target error) bool {
	return target == ErrRegression
}

// StoreError wraps a backend failure.
type StoreError struct {
	Op        string
	Backend   string
	MailboxID uint64
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("checkpoint: %s %s mbox=%d: %v", e.Backend, e.Op, e.MailboxID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == redolog.ErrIOFailure
}

func checkMonotonic(mailboxID, current, requested uint64) error {
	if requested < current {
		return &RegressionError{MailboxID: mailboxID, Current: current, Requested: requested}
	}
	return nil
}

// MemStore keeps checkpoints in memory.
type MemStore struct {
	mu     sync.Mutex
	seqs   map[uint64]uint64
	closed bool
}

func NewMemStore() *MemStore {
	return &MemStore{seqs: make(map[uint64]uint64)}
}

func (s *MemStore) Read(_ context.Context, mailboxID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.seqs[mailboxID], nil
}

func (s *MemStore) Write(_ context.Context, mailboxID uint64, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkMonotonic(mailboxID, s.seqs[mailboxID], seq); err != nil {
		return err
	}
	s.seqs[mailboxID] = seq
	return nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
