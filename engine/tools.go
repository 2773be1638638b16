package engine

import (
	"context"

	"memhybrid.app/cachemanager"
	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

// --- deduplicate_memories -------------------------------------------------

type DeduplicateRequest struct {
	UserID              string  `json:"user_id,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	DryRun              *bool   `json:"dry_run,omitempty"`
}

type DuplicateMatch struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity%"`
	Content    string  `json:"content"`
}

type DuplicateGroup struct {
	Primary    string           `json:"primary"`
	Duplicates []DuplicateMatch `json:"duplicates"`
}

type DeduplicateResponse struct {
	Groups  []DuplicateGroup `json:"groups"`
	Deleted int              `json:"deleted,omitempty"`
}

//encore:api public method=POST path=/v1/memories/deduplicate
func DeduplicateMemories(ctx context.Context, req *DeduplicateRequest) (*DeduplicateResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return s.deduplicateMemories(ctx, req)
}

func (s *Service) deduplicateMemories(ctx context.Context, req *DeduplicateRequest) (*DeduplicateResponse, error) {
	threshold := req.SimilarityThreshold
	if threshold <= 0 {
		threshold = duplicateThreshold
	}
	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}
	userID := defaultUserID(s, req.UserID)

	all, err := s.cloud.ListAll(ctx, userID, 500)
	if err != nil {
		return nil, err
	}

	groups := groupDuplicates(all, threshold)

	deleted := 0
	if !dryRun {
		for _, g := range groups {
			for _, d := range g.Duplicates {
				if err := s.cloud.Delete(ctx, userID, d.ID); err == nil {
					s.cache.DeleteMemory(ctx, d.ID)
					deleted++
				}
			}
		}
		if deleted > 0 {
			s.cache.InvalidateSearchCache(ctx)
		}
	}

	return &DeduplicateResponse{Groups: groups, Deleted: deleted}, nil
}

// groupDuplicates clusters memories around a primary (the first one seen)
// whenever their Jaccard similarity meets threshold; an id already claimed
// as a duplicate of an earlier primary is not reconsidered.
func groupDuplicates(memories []models.Memory, threshold float64) []DuplicateGroup {
	claimed := make(map[string]bool, len(memories))
	var groups []DuplicateGroup

	for i, primary := range memories {
		if claimed[primary.ID] {
			continue
		}
		var dups []DuplicateMatch
		for j := i + 1; j < len(memories); j++ {
			other := memories[j]
			if claimed[other.ID] {
				continue
			}
			sim := utils.JaccardSimilarity(primary.Content, other.Content)
			if sim >= threshold {
				claimed[other.ID] = true
				dups = append(dups, DuplicateMatch{ID: other.ID, Similarity: sim * 100, Content: other.Content})
			}
		}
		if len(dups) > 0 {
			claimed[primary.ID] = true
			groups = append(groups, DuplicateGroup{Primary: primary.ID, Duplicates: dups})
		}
	}
	return groups
}

// --- optimize_cache --------------------------------------------------------

type OptimizeCacheRequest struct {
	ForceRefresh bool `json:"force_refresh,omitempty"`
	MaxMemories  int  `json:"max_memories,omitempty"`
}

type OptimizeCacheResponse struct {
	Cached  int `json:"cached"`
	L1Count int `json:"l1Count"`
	L2Count int `json:"l2Count"`
}

//encore:api public method=POST path=/v1/cache/optimize
func OptimizeCache(ctx context.Context, req *OptimizeCacheRequest) (*OptimizeCacheResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return s.optimizeCache(ctx, req)
}

// optimizeCache re-warms the hottest memories at L1 TTL. ForceRefresh
// re-fetches from the cloud instead of just re-stamping existing hot-store
// entries; both paths report how many landed at L1 vs L2 (access count
// below FrequentAccessThreshold stays L2).
func (s *Service) optimizeCache(ctx context.Context, req *OptimizeCacheRequest) (*OptimizeCacheResponse, error) {
	maxMemories := req.MaxMemories
	if maxMemories <= 0 {
		maxMemories = 1000
	}
	userID := defaultUserID(s, "")

	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return nil, err
	}

	cached := 0
	l1Count := 0
	l2Count := 0
	for _, top := range stats.TopAccessed {
		if cached >= maxMemories {
			break
		}
		var mem models.Memory
		if req.ForceRefresh {
			mem, err = s.cloud.Get(ctx, userID, top.ID)
			if err != nil {
				continue
			}
		} else {
			existing, err := s.cache.GetMemory(ctx, top.ID)
			if err != nil || existing == nil {
				continue
			}
			mem = *existing
		}
		highPriority := top.Count >= s.cache.Config().FrequentAccessThreshold
		if err := s.cache.PutMemory(ctx, top.ID, mem, highPriority); err != nil {
			continue
		}
		cached++
		if highPriority {
			l1Count++
		} else {
			l2Count++
		}
	}
	return &OptimizeCacheResponse{Cached: cached, L1Count: l1Count, L2Count: l2Count}, nil
}

// --- cache_stats -------------------------------------------------------

type CacheStatsResponse struct {
	CachedMemories   int                        `json:"cached_memories"`
	AccessCounters   int                        `json:"access_counters"`
	KeywordIndexes   int                        `json:"keyword_indexes"`
	CachedSearches   int                        `json:"cached_searches"`
	TotalAccesses    int64                      `json:"total_accesses"`
	EstimatedHitRate float64                    `json:"estimated_hit_rate"`
	MemoryUsage      int64                      `json:"memory_usage"`
	PendingJobs      int                        `json:"pending_jobs"`
	PendingMemories  int                        `json:"pending_memories"`
	TopAccessed      []cachemanager.AccessCount `json:"top_accessed"`
}

//encore:api public method=GET path=/v1/cache/stats
func CacheStats(ctx context.Context) (*CacheStatsResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return s.cacheStats(ctx)
}

func (s *Service) cacheStats(ctx context.Context) (*CacheStatsResponse, error) {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return nil, err
	}
	keywordIdx, _ := s.cache.KeywordIndexCount(ctx)
	cachedSearches, _ := s.cache.CachedSearchCount(ctx)
	pendingMemories, _ := s.pendingMemoryCount(ctx)

	return &CacheStatsResponse{
		CachedMemories:   stats.TotalMemories,
		AccessCounters:   len(stats.TopAccessed),
		KeywordIndexes:   keywordIdx,
		CachedSearches:   cachedSearches,
		TotalAccesses:    stats.TotalAccess,
		EstimatedHitRate: s.cache.EstimatedHitRate(),
		MemoryUsage:      stats.MemoryUsage,
		PendingJobs:      s.pipeline.ActiveJobCount(),
		PendingMemories:  pendingMemories,
		TopAccessed:      stats.TopAccessed,
	}, nil
}

func (s *Service) pendingMemoryCount(ctx context.Context) (int, error) {
	entries, err := s.store.HashGetAll(ctx, utils.PendingMemoryHashKey)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// --- sync_status -------------------------------------------------------

type SyncStatusResponse struct {
	Mode            string `json:"mode"`
	HotConnected    bool   `json:"hot_connected"`
	CloudConnected  bool   `json:"cloud_connected"`
	ActiveJobs      int    `json:"active_jobs"`
	PendingMemories int    `json:"pending_memories"`
}

//encore:api public method=GET path=/v1/sync/status
func SyncStatus(ctx context.Context) (*SyncStatusResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return s.syncStatus(ctx)
}

func (s *Service) syncStatus(ctx context.Context) (*SyncStatusResponse, error) {
	pendingMemories, _ := s.pendingMemoryCount(ctx)
	return &SyncStatusResponse{
		Mode:            string(s.degr.Mode()),
		HotConnected:    s.degr.HotConnected(),
		CloudConnected:  s.degr.CloudConnected(),
		ActiveJobs:      s.pipeline.ActiveJobCount(),
		PendingMemories: pendingMemories,
	}, nil
}
