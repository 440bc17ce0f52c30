package recovery

import (
	"cmp"
	"slices"

	"github.com/julianstephens/redolog/internal/redolog/op"
)

type pendingTxn struct {
	id  uint64
	ops []op.Op
	// implicit is set when the START marker was never seen, e.g. because it
	// lies in a segment below the checkpoint.
	implicit bool
}

// TxnTracker rebuilds transactions from a scanned log. Operations are
// buffered per txn ID; COMMIT makes them eligible for redo, ABORT discards
// them, and whatever is still open at Finish is discarded as an incomplete
// write. Committed operations are released strictly in sequence order: a
// committed transaction is held back while an open transaction owns an
// earlier operation.
type TxnTracker struct {
	open  map[uint64]*pendingTxn
	ready []op.Op

	committed int
	discarded int
	orphans   int
}

func NewTxnTracker() *TxnTracker {
	return &TxnTracker{open: make(map[uint64]*pendingTxn)}
}

// Start opens txnID. A second START for a transaction that is still open
// means the stream is damaged.
func (t *TxnTracker) Start(txnID uint64) error {
	if p, ok := t.open[txnID]; ok && !p.implicit {
		return ErrDoubleStart
	}
	if _, ok := t.open[txnID]; !ok {
		t.open[txnID] = &pendingTxn{id: txnID}
	}
	return nil
}

// Touch records that txnID is in flight without buffering anything. Replay
// uses it for operations at or below the checkpoint.
func (t *TxnTracker) Touch(txnID uint64) {
	if _, ok := t.open[txnID]; !ok {
		t.open[txnID] = &pendingTxn{id: txnID, implicit: true}
	}
}

// Add buffers o under its transaction, opening it implicitly if needed.
func (t *TxnTracker) Add(o op.Op) {
	txnID := o.Meta().TxnID
	p, ok := t.open[txnID]
	if !ok {
		p = &pendingTxn{id: txnID, implicit: true}
		t.open[txnID] = p
	}
	p.ops = append(p.ops, o)
}

// Commit closes txnID and returns the operations that may now be applied,
// in sequence order. A COMMIT for a transaction never seen is ignored.
func (t *TxnTracker) Commit(txnID uint64) []op.Op {
	p, ok := t.open[txnID]
	if !ok {
		t.orphans++
		return nil
	}
	delete(t.open, txnID)
	t.committed++
	t.ready = append(t.ready, p.ops...)
	return t.release(false)
}

// Abort discards txnID. Releasing can still happen here when the aborted
// transaction was holding back a committed one.
func (t *TxnTracker) Abort(txnID uint64) []op.Op {
	if _, ok := t.open[txnID]; !ok {
		t.orphans++
		return nil
	}
	delete(t.open, txnID)
	t.discarded++
	return t.release(false)
}

// Finish discards every transaction that is still open and returns the
// committed operations they were holding back, plus the discarded IDs.
func (t *TxnTracker) Finish() ([]op.Op, []uint64) {
	dropped := t.Open()
	t.discarded += len(dropped)
	clear(t.open)
	return t.release(true), dropped
}

// Open returns the IDs of the open transactions in ascending order.
func (t *TxnTracker) Open() []uint64 {
	ids := make([]uint64, 0, len(t.open))
	for id := range t.open {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Held returns the number of committed operations waiting for an earlier
// open transaction to finish.
func (t *TxnTracker) Held() int { return len(t.ready) }

func (t *TxnTracker) Committed() int { return t.committed }
func (t *TxnTracker) Discarded() int { return t.discarded }

// Orphans counts COMMIT and ABORT markers for transactions never seen.
func (t *TxnTracker) Orphans() int { return t.orphans }

func (t *TxnTracker) release(all bool) []op.Op {
	if len(t.ready) == 0 {
		return nil
	}
	slices.SortFunc(t.ready, func(a, b op.Op) int {
		return cmp.Compare(a.Meta().Seq, b.Meta().Seq)
	})

	n := len(t.ready)
	if !all {
		if low, ok := t.lowWater(); ok {
			n, _ = slices.BinarySearchFunc(t.ready, low, func(o op.Op, seq uint64) int {
				return cmp.Compare(o.Meta().Seq, seq)
			})
		}
	}
	out := slices.Clone(t.ready[:n])
	t.ready = slices.Delete(t.ready, 0, n)
	return out
}

// lowWater is the lowest sequence number buffered by an open transaction.
func (t *TxnTracker) lowWater() (uint64, bool) {
	var low uint64
	found := false
	for _, p := range t.open {
		if len(p.ops) == 0 {
			continue
		}
		if s := p.ops[0].Meta().Seq; !found || s < low {
			low, found = s, true
		}
	}
	return low, found
}
