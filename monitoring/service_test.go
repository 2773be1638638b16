package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"memhybrid.app/pkg/pubsub"
)

// mockAlertStore is a test double for AlertStore, grounded on
// invalidation/service_test.go's MockAuditLogger.
type mockAlertStore struct {
	mu      sync.Mutex
	records []AlertRecord
}

func (m *mockAlertStore) Record(ctx context.Context, rule string, currentValue, threshold float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, AlertRecord{Rule: rule, CurrentValue: currentValue, Threshold: threshold})
	return nil
}

func (m *mockAlertStore) Recent(ctx context.Context, limit int) ([]AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]AlertRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.records[len(m.records)-1-i]
	}
	return out, nil
}

func newTestService() (*Service, *mockAlertStore) {
	store := &mockAlertStore{}
	return &Service{
		counters: &Counters{},
		alerts:   store,
		config:   DefaultConfig(),
		stopChan: make(chan struct{}),
	}, store
}

func TestCountersSnapshotTracksIncrements(t *testing.T) {
	s, _ := newTestService()
	s.counters.Invalidations.Inc()
	s.counters.MemoryProcess.Inc()
	s.counters.JobsCompleted.Inc()
	s.counters.JobsFailed.Inc()

	snap := s.counters.Snapshot()
	if snap.Invalidations != 1 || snap.MemoryProcess != 1 || snap.JobsCompleted != 1 || snap.JobsFailed != 1 {
		t.Errorf("Snapshot() = %+v, want all counters at 1", snap)
	}
}

func TestErrorRateZeroWithNoJobs(t *testing.T) {
	var snap Snapshot
	if got := snap.errorRate(); got != 0 {
		t.Errorf("errorRate() = %v, want 0", got)
	}
}

func TestEvaluateErrorRateRecordsAboveThreshold(t *testing.T) {
	s, store := newTestService()
	snap := Snapshot{JobsCompleted: 1, JobsFailed: 9} // 90% failure rate

	s.evaluateErrorRate(context.Background(), snap)

	if len(store.records) != 1 {
		t.Fatalf("evaluateErrorRate() recorded %d alerts, want 1", len(store.records))
	}
	if store.records[0].Rule != "high_error_rate" {
		t.Errorf("recorded rule = %q, want high_error_rate", store.records[0].Rule)
	}
}

func TestEvaluateErrorRateSkipsBelowThreshold(t *testing.T) {
	s, store := newTestService()
	snap := Snapshot{JobsCompleted: 99, JobsFailed: 1}

	s.evaluateErrorRate(context.Background(), snap)

	if len(store.records) != 0 {
		t.Errorf("evaluateErrorRate() recorded %d alerts, want 0", len(store.records))
	}
}

func TestHandleJobCompleteMetricCountsFailuresAndSuccesses(t *testing.T) {
	s, _ := newTestService()
	svc = s
	t.Cleanup(func() { svc = nil })

	ctx := context.Background()
	succeeded := &pubsub.JobCompleteEvent{
		Version:     pubsub.EventVersion1,
		JobID:       "job-ok",
		CompletedAt: time.Now().UTC(),
		RequestID:   "req-1",
	}
	failed := &pubsub.JobCompleteEvent{
		Version:     pubsub.EventVersion1,
		JobID:       "job-bad",
		Error:       "boom",
		CompletedAt: time.Now().UTC(),
		RequestID:   "req-2",
	}
	if err := HandleJobCompleteMetric(ctx, succeeded); err != nil {
		t.Fatalf("HandleJobCompleteMetric() error = %v", err)
	}
	if err := HandleJobCompleteMetric(ctx, failed); err != nil {
		t.Fatalf("HandleJobCompleteMetric() error = %v", err)
	}

	snap := s.counters.Snapshot()
	if snap.JobsCompleted != 1 || snap.JobsFailed != 1 {
		t.Errorf("Snapshot() = %+v, want 1 completed and 1 failed", snap)
	}
}
