package engine

import (
	"context"
	"sort"

	"memhybrid.app/cachemanager"
	"memhybrid.app/pkg/cloudclient"
	"memhybrid.app/pkg/hotstore"
	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

// searchPlanner is the Hybrid Search Planner (C6): it decides, per call,
// whether to serve from the cache-side keyword index, the cloud, or a
// merge of both (§4.6).
type searchPlanner struct {
	cloud cloudclient.Client
	cache *cachemanager.Manager
	store hotstore.Client
}

func newSearchPlanner(cloud cloudclient.Client, cache *cachemanager.Manager, store hotstore.Client) *searchPlanner {
	return &searchPlanner{cloud: cloud, cache: cache, store: store}
}

// SearchMemory runs §4.6's planner. Tie-breaks on equal keyword score favor
// the id that sorts first lexically - the spec leaves this
// implementation-defined.
func (s *searchPlanner) SearchMemory(ctx context.Context, userID, query string, limit int, preferCache bool) ([]models.Memory, error) {
	if limit <= 0 {
		limit = 10
	}

	if preferCache {
		if cached, err := s.cache.GetCachedSearch(ctx, query, limit); err == nil && cached != nil {
			return capResults(stampSource(cached, "hot"), limit), nil
		}

		hotResults, err := s.cacheSideSearch(ctx, query, limit)
		if err != nil {
			hotResults = nil
		}

		merged := stampSource(hotResults, "hot")
		if len(merged) < limit {
			cloudResults, err := s.cloud.Search(ctx, userID, query, limit)
			if err == nil {
				merged = mergeByID(merged, stampSource(cloudResults, "cloud"))
			}
		}
		merged = capResults(merged, limit)
		s.cache.CacheSearch(ctx, query, limit, merged)
		return merged, nil
	}

	cloudResults, err := s.cloud.Search(ctx, userID, query, limit)
	if err != nil {
		return nil, err
	}
	cloudResults = capResults(stampSource(cloudResults, "cloud"), limit)
	for _, mem := range cloudResults {
		s.cache.PutMemory(ctx, mem.ID, mem, false)
	}
	s.cache.CacheSearch(ctx, query, limit, cloudResults)
	return cloudResults, nil
}

// cacheSideSearch scores candidate ids by how many query keyword tokens
// index to them, then hydrates the top scorers via BatchGet.
func (s *searchPlanner) cacheSideSearch(ctx context.Context, query string, limit int) ([]models.Memory, error) {
	tokens := utils.ExtractKeywords(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	scores := make(map[string]int)
	for _, tok := range tokens {
		ids, err := s.store.SetMembers(ctx, utils.KeywordKey(tok))
		if err != nil {
			continue
		}
		for _, id := range ids {
			scores[id]++
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	hydrated, err := s.cache.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]models.Memory, 0, len(ids))
	for _, id := range ids {
		if mem, ok := hydrated[id]; ok && mem != nil {
			m := *mem
			m.RelevanceScore = float64(scores[id])
			results = append(results, m)
		}
	}
	return results, nil
}

func stampSource(memories []models.Memory, source string) []models.Memory {
	stamped := make([]models.Memory, len(memories))
	for i, m := range memories {
		m.Source = source
		stamped[i] = m
	}
	return stamped
}

// mergeByID combines hot and cloud results, with hot winning on id
// collision (§4.6).
func mergeByID(hot, cloud []models.Memory) []models.Memory {
	seen := make(map[string]bool, len(hot))
	merged := make([]models.Memory, 0, len(hot)+len(cloud))
	for _, m := range hot {
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range cloud {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged = append(merged, m)
	}
	return merged
}

func capResults(memories []models.Memory, limit int) []models.Memory {
	if len(memories) > limit {
		return memories[:limit]
	}
	return memories
}
