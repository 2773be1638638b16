package cachemanager

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

// AccessCount pairs a memory id with its access counter for the
// top-accessed report.
type AccessCount struct {
	ID    string
	Count int64
}

// Stats is the Cache Manager's own view of §4.3's Stats() contract. The
// engine's cache_stats RPC (§6) layers pending-job/pending-memory counts
// and the true hits/(hits+misses) ratio on top of this.
type Stats struct {
	TotalMemories int
	TotalAccess   int64
	HitRate       float64 // bit-exact heuristic, see hitRateHeuristic
	MemoryUsage   int64
	TopAccessed   []AccessCount
}

// hitRateHeuristic reproduces §4.3's dashboard-compatible formula
// verbatim: min(100, totalAccess/totalMemories*10). This is not a real
// ratio - EstimatedHitRate (tracked separately via metrics.hitRatio) is
// the statistically meaningful one; both are surfaced because existing
// dashboards depend on this exact heuristic's shape.
func hitRateHeuristic(totalAccess int64, totalMemories int) float64 {
	if totalMemories == 0 {
		return 0
	}
	return math.Min(100, float64(totalAccess)/float64(totalMemories)*10)
}

// Stats computes §4.3's Stats() payload. totalMemories comes from a SCAN
// count of memory:*, which is the only permitted enumeration primitive
// for large keyspaces (§4.1).
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.StatsTimeout)
	defer cancel()

	totalMemories, err := m.scanCount(ctx, utils.MemoryKeyPrefix+"*")
	if err != nil {
		return Stats{}, models.NewCacheError("stats", err)
	}

	accessFields, err := m.store.HashGetAll(ctx, utils.MetadataHashKey)
	if err != nil {
		return Stats{}, models.NewCacheError("stats", err)
	}

	var totalAccess int64
	var top []AccessCount
	for field, raw := range accessFields {
		id := strings.TrimPrefix(field, "access:")
		count, _ := strconv.ParseInt(raw, 10, 64)
		totalAccess += count
		top = append(top, AccessCount{ID: id, Count: count})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > 3 {
		top = top[:3]
	}

	return Stats{
		TotalMemories: totalMemories,
		TotalAccess:   totalAccess,
		HitRate:       hitRateHeuristic(totalAccess, totalMemories),
		MemoryUsage:   int64(totalMemories) * averageMemoryBytes,
		TopAccessed:   top,
	}, nil
}

// averageMemoryBytes is a rough per-memory size estimate used only for the
// memory_usage field reported to callers; it is not a precise accounting.
const averageMemoryBytes = 512

func (m *Manager) scanCount(ctx context.Context, pattern string) (int, error) {
	count := 0
	cursor := uint64(0)
	for {
		newCursor, keys, err := m.store.Scan(ctx, cursor, pattern, 100)
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if newCursor == 0 {
			break
		}
		cursor = newCursor
	}
	return count, nil
}

// EstimatedHitRate returns the true hits/(hits+misses) ratio, kept
// separate from the dashboard heuristic in Stats (§9's open-question
// resolution: preserve the old formula and expose a correct one alongside
// it).
func (m *Manager) EstimatedHitRate() float64 {
	return m.metrics.hitRatio()
}

// KeywordIndexCount reports the number of distinct indexed keywords via a
// SCAN count of keyword:*, used by cache_stats's keyword_indexes field.
func (m *Manager) KeywordIndexCount(ctx context.Context) (int, error) {
	return m.scanCount(ctx, utils.KeywordKeyPrefix+"*")
}

// CachedSearchCount reports the number of cached search results via a SCAN
// count of search:*, used by cache_stats's cached_searches field.
func (m *Manager) CachedSearchCount(ctx context.Context) (int, error) {
	return m.scanCount(ctx, utils.SearchKeyPrefix+"*")
}
