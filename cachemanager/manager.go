// Package cachemanager is the Cache Manager (C3): the two-tier (by TTL,
// not by physical store) memory cache, its access-count tracking, keyword
// index, search-result cache, and batch operations. It is the only
// component that writes hot-store keys in the memory:*, access:*,
// keyword:*, and search:* namespaces (§3's Ownership rule).
package cachemanager

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"memhybrid.app/pkg/hotstore"
	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

// Manager implements the Cache Manager's public operation set against a
// hotstore.Client. It holds no state of its own beyond the coalescer and
// counters - all memory data lives in the hot store, so a Manager can be
// recreated freely (it is not itself a cache).
type Manager struct {
	store     hotstore.Client
	config    Config
	coalescer *requestCoalescer
	metrics   *metrics
}

// New builds a Manager over store. Background keyword indexing spawned by
// PutMemory runs detached from any single request's context.
func New(store hotstore.Client, config Config) *Manager {
	return &Manager{
		store:     store,
		config:    config,
		coalescer: newRequestCoalescer(),
		metrics:   &metrics{},
	}
}

// Config returns the Manager's placement/TTL configuration, used by
// callers (optimize_cache) that need FrequentAccessThreshold without
// duplicating it.
func (m *Manager) Config() Config { return m.config }

// GetMemory returns the cached memory for id, or (nil, nil) on a clean
// miss. A hit atomically increments the access counter. Concurrent callers
// for the same id are coalesced onto a single hot-store round trip.
func (m *Manager) GetMemory(ctx context.Context, id string) (*models.Memory, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.OperationTimeout)
	defer cancel()

	result, err := m.coalescer.do("get:"+id, func() (interface{}, error) {
		data, err := m.store.Get(ctx, utils.MemoryKey(id))
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, nil
		}
		mem, err := utils.UnmarshalMemory(data)
		if err != nil {
			return nil, models.NewCacheError("get_memory", err)
		}
		if _, err := m.store.HashIncrBy(ctx, utils.MetadataHashKey, utils.AccessFieldName(id), 1); err != nil {
			return nil, models.NewCacheError("get_memory", err)
		}
		return mem, nil
	})

	if ctx.Err() != nil {
		return nil, models.NewCacheTimeout("get_memory")
	}
	if err != nil {
		m.metrics.errors.Inc()
		return nil, err
	}
	if result == nil {
		m.metrics.misses.Inc()
		return nil, nil
	}
	m.metrics.hits.Inc()
	return result.(*models.Memory), nil
}

// PutMemory writes memory under id, chooses its TTL via the §4.3 placement
// rule, and schedules background keyword indexing. highPriority is true
// when the caller marked priority=high; the access count used for
// placement is read from the hot store so a memory promoted to frequent
// access by prior GetMemory calls keeps its L1 TTL on rewrite.
func (m *Manager) PutMemory(ctx context.Context, id string, memory models.Memory, highPriority bool) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.OperationTimeout)
	defer cancel()

	accessCounts, err := m.store.HashGetAll(ctx, utils.MetadataHashKey)
	if err != nil {
		return models.NewCacheError("put_memory", err)
	}
	var accessCount int64
	fmt.Sscanf(accessCounts[utils.AccessFieldName(id)], "%d", &accessCount)

	ttl := m.config.placementTTL(highPriority, accessCount)

	data, err := utils.MarshalMemory(&memory)
	if err != nil {
		return models.NewCacheError("put_memory", err)
	}
	if err := m.store.SetWithTTL(ctx, utils.MemoryKey(id), data, ttl); err != nil {
		return models.NewCacheError("put_memory", err)
	}
	m.metrics.sets.Inc()

	go indexKeywords(context.Background(), m.store, id, memory.Content)

	return nil
}

// DeleteMemory removes id's memory record, its keyword indices, and its
// access counter. §3 requires this to leave no trace anywhere; a crash
// partway through is tolerated (see keywords.go's deindexKeywords).
func (m *Manager) DeleteMemory(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.OperationTimeout)
	defer cancel()

	if err := deindexKeywords(ctx, m.store, id); err != nil {
		return models.NewCacheError("delete_memory", err)
	}
	if err := m.store.Del(ctx, utils.MemoryKey(id)); err != nil {
		return models.NewCacheError("delete_memory", err)
	}
	if err := m.store.HashDel(ctx, utils.MetadataHashKey, utils.AccessFieldName(id)); err != nil {
		return models.NewCacheError("delete_memory", err)
	}
	m.metrics.deletes.Inc()
	return nil
}

// hashQuery computes the md5(query) component of a search-cache key.
func hashQuery(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])
}

// CacheSearch stores results under search:{md5(query)}:{limit} with the
// search-cache TTL.
func (m *Manager) CacheSearch(ctx context.Context, query string, limit int, results []models.Memory) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.OperationTimeout)
	defer cancel()

	data, err := utils.MarshalJSON(results)
	if err != nil {
		return models.NewCacheError("cache_search", err)
	}
	key := utils.SearchKey(hashQuery(query), limit)
	if err := m.store.SetWithTTL(ctx, key, data, m.config.SearchTTL); err != nil {
		return models.NewCacheError("cache_search", err)
	}
	return nil
}

// GetCachedSearch returns the cached results for (query, limit), or
// (nil, nil) on a clean miss.
func (m *Manager) GetCachedSearch(ctx context.Context, query string, limit int) ([]models.Memory, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.OperationTimeout)
	defer cancel()

	key := utils.SearchKey(hashQuery(query), limit)
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, models.NewCacheError("get_cached_search", err)
	}
	if data == nil {
		return nil, nil
	}
	var results []models.Memory
	if err := utils.UnmarshalJSON(data, &results); err != nil {
		return nil, models.NewCacheError("get_cached_search", err)
	}
	return results, nil
}

// InvalidateSearchCache SCAN-deletes every search:* key. Called on every
// write path (§4.5) so a subsequent search always sees fresh data once the
// search-cache TTL would otherwise have masked it.
func (m *Manager) InvalidateSearchCache(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.OperationTimeout)
	defer cancel()

	deleted := 0
	cursor := uint64(0)
	for {
		newCursor, keys, err := m.store.Scan(ctx, cursor, utils.SearchKeyPrefix+"*", 100)
		if err != nil {
			return deleted, models.NewCacheError("invalidate_search_cache", err)
		}
		if len(keys) > 0 {
			if err := m.store.Del(ctx, keys...); err != nil {
				return deleted, models.NewCacheError("invalidate_search_cache", err)
			}
			deleted += len(keys)
		}
		if newCursor == 0 {
			break
		}
		cursor = newCursor
	}
	return deleted, nil
}
