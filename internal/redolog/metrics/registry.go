// Package metrics exposes Prometheus instrumentation for the redo log.
// Every Record method is safe to call on a nil *Registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all redo log metrics.
type Registry struct {
	// Writer
	AppendsTotal      *prometheus.CounterVec
	BytesWritten      prometheus.Counter
	FsyncDuration     prometheus.Histogram
	RotationsTotal    prometheus.Counter
	SegmentsPurged    prometheus.Counter
	TailRepairsTotal  prometheus.Counter
	BatchFlushesTotal prometheus.Counter
	BatchSize         prometheus.Histogram

	// Journal
	TxnsTotal *prometheus.CounterVec

	// Recovery
	RecoveryMailboxesTotal *prometheus.CounterVec
	RecoveryOpsApplied     prometheus.Counter
	RecoveryOpsSkipped     prometheus.Counter
	RecoveryTxnsDiscarded  prometheus.Counter
	RecoveryDuration       prometheus.Histogram

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric initialized.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}
	r.initWriterMetrics()
	r.initJournalMetrics()
	r.initRecoveryMetrics()
	return r
}

// GetPrometheusRegistry returns the underlying registry for exposition.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
