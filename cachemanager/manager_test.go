package cachemanager

import (
	"context"
	"testing"
	"time"

	"memhybrid.app/pkg/hotstore"
	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, mr, err := hotstore.NewSubstitute()
	if err != nil {
		t.Fatalf("NewSubstitute() error = %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})
	cfg := DefaultConfig()
	cfg.OperationTimeout = 2 * time.Second
	cfg.StatsTimeout = 2 * time.Second
	return New(store, cfg)
}

func TestPutThenGetMemory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	mem := models.Memory{ID: "mem-1", Content: "remember the golang workshop", UserID: "u1"}
	if err := m.PutMemory(ctx, "mem-1", mem, false); err != nil {
		t.Fatalf("PutMemory() error = %v", err)
	}

	got, err := m.GetMemory(ctx, "mem-1")
	if err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}
	if got == nil || got.Content != mem.Content {
		t.Fatalf("GetMemory() = %+v, want %+v", got, mem)
	}
}

func TestGetMemoryMissReturnsNilNoError(t *testing.T) {
	m := newTestManager(t)
	got, err := m.GetMemory(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetMemory() = %v, want nil", got)
	}
}

func TestGetMemoryCoalescesConcurrentCalls(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	m.PutMemory(ctx, "mem-1", models.Memory{ID: "mem-1", Content: "hello world"}, false)

	results := make(chan *models.Memory, 10)
	for i := 0; i < 10; i++ {
		go func() {
			got, _ := m.GetMemory(ctx, "mem-1")
			results <- got
		}()
	}
	for i := 0; i < 10; i++ {
		got := <-results
		if got == nil || got.ID != "mem-1" {
			t.Errorf("concurrent GetMemory() = %v", got)
		}
	}
}

func TestDeleteMemoryRemovesKeywordIndex(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	mem := models.Memory{ID: "mem-1", Content: "distributed caching systems"}
	m.PutMemory(ctx, "mem-1", mem, false)
	time.Sleep(50 * time.Millisecond) // let background indexKeywords land

	if err := m.DeleteMemory(ctx, "mem-1"); err != nil {
		t.Fatalf("DeleteMemory() error = %v", err)
	}

	got, _ := m.GetMemory(ctx, "mem-1")
	if got != nil {
		t.Errorf("GetMemory() after delete = %v, want nil", got)
	}

	members, err := m.store.SetMembers(ctx, "keyword:distributed")
	if err != nil {
		t.Fatalf("SetMembers() error = %v", err)
	}
	for _, id := range members {
		if id == "mem-1" {
			t.Error("keyword index still references deleted memory")
		}
	}
}

func TestDeleteMemoryRemovesAccessCounter(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	mem := models.Memory{ID: "mem-1", Content: "a note with an access counter"}
	m.PutMemory(ctx, "mem-1", mem, false)
	if _, err := m.GetMemory(ctx, "mem-1"); err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}

	fields, err := m.store.HashGetAll(ctx, utils.MetadataHashKey)
	if err != nil {
		t.Fatalf("HashGetAll() error = %v", err)
	}
	if _, ok := fields[utils.AccessFieldName("mem-1")]; !ok {
		t.Fatal("expected access counter to exist before delete")
	}

	if err := m.DeleteMemory(ctx, "mem-1"); err != nil {
		t.Fatalf("DeleteMemory() error = %v", err)
	}

	fields, err = m.store.HashGetAll(ctx, utils.MetadataHashKey)
	if err != nil {
		t.Fatalf("HashGetAll() error = %v", err)
	}
	if _, ok := fields[utils.AccessFieldName("mem-1")]; ok {
		t.Error("access counter survived DeleteMemory")
	}
}

func TestCacheSearchRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	results := []models.Memory{{ID: "mem-1", Content: "a"}}

	if err := m.CacheSearch(ctx, "golang", 10, results); err != nil {
		t.Fatalf("CacheSearch() error = %v", err)
	}
	got, err := m.GetCachedSearch(ctx, "golang", 10)
	if err != nil {
		t.Fatalf("GetCachedSearch() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem-1" {
		t.Errorf("GetCachedSearch() = %+v", got)
	}
}

func TestInvalidateSearchCacheClearsAllEntries(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	m.CacheSearch(ctx, "a", 10, []models.Memory{{ID: "1"}})
	m.CacheSearch(ctx, "b", 10, []models.Memory{{ID: "2"}})

	deleted, err := m.InvalidateSearchCache(ctx)
	if err != nil {
		t.Fatalf("InvalidateSearchCache() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("InvalidateSearchCache() deleted = %d, want 2", deleted)
	}

	got, _ := m.GetCachedSearch(ctx, "a", 10)
	if got != nil {
		t.Error("search cache entry survived InvalidateSearchCache")
	}
}

func TestBatchGetAndBatchSet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	items := []BatchSetItem{
		{ID: "mem-1", Memory: models.Memory{ID: "mem-1", Content: "one"}},
		{ID: "mem-2", Memory: models.Memory{ID: "mem-2", Content: "two"}},
	}
	results := m.BatchSet(ctx, items)
	for _, r := range results {
		if r.Error != nil {
			t.Errorf("BatchSet() item %s error = %v", r.ID, r.Error)
		}
	}

	got, err := m.BatchGet(ctx, []string{"mem-1", "mem-2", "missing"})
	if err != nil {
		t.Fatalf("BatchGet() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("BatchGet() returned %d entries, want 2", len(got))
	}
}

func TestPlacementRuleChoosesL1ForHighPriority(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.placementTTL(true, 0); got != cfg.L1TTL {
		t.Errorf("placementTTL(high priority) = %v, want L1TTL", got)
	}
	if got := cfg.placementTTL(false, cfg.FrequentAccessThreshold); got != cfg.L1TTL {
		t.Errorf("placementTTL(frequent access) = %v, want L1TTL", got)
	}
	if got := cfg.placementTTL(false, 0); got != cfg.L2TTL {
		t.Errorf("placementTTL(cold) = %v, want L2TTL", got)
	}
}

func TestStatsReportsHeuristicHitRate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	m.PutMemory(ctx, "mem-1", models.Memory{ID: "mem-1", Content: "x"}, false)
	m.GetMemory(ctx, "mem-1")
	m.GetMemory(ctx, "mem-1")

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalMemories != 1 {
		t.Errorf("TotalMemories = %d, want 1", stats.TotalMemories)
	}
	if stats.TotalAccess != 2 {
		t.Errorf("TotalAccess = %d, want 2", stats.TotalAccess)
	}
	wantHitRate := hitRateHeuristic(2, 1)
	if stats.HitRate != wantHitRate {
		t.Errorf("HitRate = %v, want %v", stats.HitRate, wantHitRate)
	}
}
