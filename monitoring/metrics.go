package monitoring

import (
	"go.uber.org/atomic"
)

// Counters tracks the event types the rest of the system publishes on
// engine's pub/sub topics (§4.9): cache invalidations, re-caches from
// memory:process, and job outcomes. go.uber.org/atomic's struct-embeddable
// Int64 lets Snapshot read each counter for GetMetrics' response without
// a mutex, the same property the teacher's MetricsCollector relied on
// sync/atomic for.
type Counters struct {
	Invalidations atomic.Int64
	MemoryProcess atomic.Int64
	JobsCompleted atomic.Int64
	JobsFailed    atomic.Int64
}

// Snapshot is a point-in-time, non-atomic copy of Counters safe to
// serialize.
type Snapshot struct {
	Invalidations int64 `json:"invalidations"`
	MemoryProcess int64 `json:"memory_process"`
	JobsCompleted int64 `json:"jobs_completed"`
	JobsFailed    int64 `json:"jobs_failed"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Invalidations: c.Invalidations.Load(),
		MemoryProcess: c.MemoryProcess.Load(),
		JobsCompleted: c.JobsCompleted.Load(),
		JobsFailed:    c.JobsFailed.Load(),
	}
}

// errorRate is jobs-failed as a fraction of jobs-observed; 0 when nothing
// has completed yet, matching the teacher's own "no data yet" convention
// for rate metrics.
func (s Snapshot) errorRate() float64 {
	total := s.JobsCompleted + s.JobsFailed
	if total == 0 {
		return 0
	}
	return float64(s.JobsFailed) / float64(total)
}
