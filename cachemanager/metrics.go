package cachemanager

import "go.uber.org/atomic"

// metrics tracks the counters behind cache_stats and sync_status. Plain
// int64 fields under sync/atomic would work equally well; go.uber.org/atomic
// is used instead for its safer-by-construction Int64 type (no risk of an
// accidental non-atomic field access creeping in under later edits).
type metrics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	errors    atomic.Int64
	accessSum atomic.Int64
}

func (m *metrics) hitRatio() float64 {
	hits := m.hits.Load()
	total := hits + m.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
