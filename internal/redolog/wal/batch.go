package wal

import (
	"sync"
	"time"

	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog/metrics"
)

// BatchFlusher makes appended entries durable in the background: it calls
// sync every interval, or as soon as entries appends are pending. The first
// sync failure is latched and reported by Err from then on.
type BatchFlusher struct {
	sync     func() error
	entries  int
	interval time.Duration
	metrics  *metrics.Registry
	lg       logger.Logger

	mu      sync.Mutex
	pending int
	err     error

	kickCh    chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewBatchFlusher starts a flusher goroutine. Close stops it.
func NewBatchFlusher(syncFn func() error, entries int, interval time.Duration, m *metrics.Registry, lg logger.Logger) *BatchFlusher {
	if entries <= 0 {
		entries = 1
	}
	bf := &BatchFlusher{
		sync:     syncFn,
		entries:  entries,
		interval: interval,
		metrics:  m,
		lg:       logger.OrNoOp(lg),
		kickCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}

	bf.wg.Add(1)
	go bf.run()
	return bf
}

// Notify records one appended entry.
func (bf *BatchFlusher) Notify() {
	bf.mu.Lock()
	bf.pending++
	full := bf.pending >= bf.entries
	bf.mu.Unlock()

	if full {
		select {
		case bf.kickCh <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of entries appended since the last flush.
func (bf *BatchFlusher) Pending() int {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.pending
}

// Err returns the latched flush failure, if any.
func (bf *BatchFlusher) Err() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.err
}

func (bf *BatchFlusher) run() {
	defer bf.wg.Done()

	interval := bf.interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-bf.stopCh:
			bf.flush()
			return
		case <-ticker.C:
			bf.flush()
		case <-bf.kickCh:
			bf.flush()
		}
	}
}

func (bf *BatchFlusher) flush() {
	bf.mu.Lock()
	n := bf.pending
	if n == 0 || bf.err != nil {
		bf.mu.Unlock()
		return
	}
	bf.pending = 0
	bf.mu.Unlock()

	if err := bf.sync(); err != nil {
		bf.mu.Lock()
		if bf.err == nil {
			bf.err = err
		}
		bf.mu.Unlock()
		bf.lg.Error("batch flush failed", err, "entries", n)
		return
	}
	bf.metrics.RecordBatchFlush(n)
}

// Flush synchronously flushes pending entries and returns the latched error.
func (bf *BatchFlusher) Flush() error {
	bf.flush()
	return bf.Err()
}

// Close stops the goroutine after a final flush and returns the latched error.
func (bf *BatchFlusher) Close() error {
	bf.closeOnce.Do(func() {
		close(bf.stopCh)
		bf.wg.Wait()
	})
	return bf.Err()
}
