package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.AppendsTotal == nil || r.FsyncDuration == nil || r.RecoveryDuration == nil {
		t.Error("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordAppend(t *testing.T) {
	r := NewRegistry()
	r.RecordAppend("op", 100)
	r.RecordAppend("op", 50)
	r.RecordAppend("commit", 30)

	if got := testutil.ToFloat64(r.AppendsTotal.WithLabelValues("op")); got != 2 {
		t.Errorf("op appends = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.BytesWritten); got != 180 {
		t.Errorf("bytes written = %v, want 180", got)
	}
}

func TestRecordRecovery(t *testing.T) {
	r := NewRegistry()
	r.RecordRecovery(true, 3, 2, 1, 10*time.Millisecond)
	r.RecordRecovery(false, 0, 0, 0, time.Millisecond)

	if got := testutil.ToFloat64(r.RecoveryMailboxesTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok mailboxes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.RecoveryMailboxesTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed mailboxes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.RecoveryOpsApplied); got != 3 {
		t.Errorf("applied = %v, want 3", got)
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	r.RecordAppend("op", 1)
	r.RecordFsync(time.Millisecond)
	r.RecordRotation()
	r.RecordPurge(1)
	r.RecordTailRepair()
	r.RecordBatchFlush(1)
	r.RecordTxn("commit")
	r.RecordRecovery(true, 1, 1, 1, time.Millisecond)
}
