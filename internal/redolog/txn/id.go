package txn

import (
	"math"
	"sync/atomic"
)

// IDAllocator hands out txn IDs for every mailbox journal of one process.
// IDs only grow, across mailboxes and across restarts once seeded.
type IDAllocator interface {
	// Next reserves and returns the next transaction ID. 0 is never returned.
	Next() (uint64, error)

	// Peek returns the next ID that would be handed out without reserving it.
	Peek() uint64

	// SetNext moves the counter forward to next. Moving it back is an error.
	SetNext(next uint64) error

	// Observe raises the next ID past seen. Lower values are ignored.
	Observe(seen uint64) error
}

// CounterAllocator is a lock-free IDAllocator.
type CounterAllocator struct {
	next atomic.Uint64
}

// NewCounterAllocator returns an allocator whose first ID is next: 1 for a
// fresh log root, or the highest recovered txn ID plus one.
func NewCounterAllocator(next uint64) (*CounterAllocator, error) {
	if next < 1 {
		return nil, &TxnIDError{Err: ErrInvalidTxnID, Have: next, Want: 1}
	}
	a := &CounterAllocator{}
	a.next.Store(next)
	return a, nil
}

func (a *CounterAllocator) Next() (uint64, error) {
	for {
		cur := a.next.Load()
		if cur == math.MaxUint64 {
			return 0, &TxnIDError{Err: ErrTxnIDOverflow, Have: cur}
		}
		if a.next.CompareAndSwap(cur, cur+1) {
			return cur, nil
		}
	}
}

func (a *CounterAllocator) Peek() uint64 {
	return a.next.Load()
}

func (a *CounterAllocator) SetNext(next uint64) error {
	if next < 1 {
		return &TxnIDError{Err: ErrInvalidTxnID, Have: next, Want: 1}
	}
	for {
		cur := a.next.Load()
		if next < cur {
			return &TxnIDError{Err: ErrTxnIDRegression, Have: next, Want: cur}
		}
		if a.next.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Observe makes sure no ID at or below seen is handed out again.
func (a *CounterAllocator) Observe(seen uint64) error {
	if seen == math.MaxUint64 {
		return &TxnIDError{Err: ErrTxnIDOverflow, Have: seen}
	}
	for {
		cur := a.next.Load()
		if seen < cur {
			return nil
		}
		if a.next.CompareAndSwap(cur, seen+1) {
			return nil
		}
	}
}
