package engine

import (
	"context"
	"testing"
	"time"

	"memhybrid.app/cachemanager"
	"memhybrid.app/pkg/cloudclient"
	"memhybrid.app/pkg/degradation"
	"memhybrid.app/pkg/hotstore"
	"memhybrid.app/pkg/middleware"
	"memhybrid.app/pkg/pubsub"
)

func newTestServiceWithMode(t *testing.T, mode degradation.Mode) *Service {
	t.Helper()
	store, mr, err := hotstore.NewSubstitute()
	if err != nil {
		t.Fatalf("NewSubstitute() error = %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})

	cloud := cloudclient.NewDemo()
	degr := degradation.New(store, false, mode)
	manager := cachemanager.New(store, cachemanager.DefaultConfig())

	s := &Service{
		cache:    manager,
		cloud:    cloud,
		store:    store,
		degr:     degr,
		pipeline: newPipeline(cloud, manager, store, degr, noopBus{}, nil),
		planner:  newSearchPlanner(cloud, manager, store),
		limiter:  middleware.NewTokenBucket(1000, 1000),
	}
	return s
}

// newTestService builds a Service in CloudOnly mode, the simplest case
// where every add_memory call resolves synchronously - most tests below
// want that determinism. Tests exercising the async path build Hybrid
// explicitly.
func newTestService(t *testing.T) *Service {
	return newTestServiceWithMode(t, degradation.ModeCloudOnly)
}

func TestAddMemorySyncPathReturnsCount(t *testing.T) {
	s := newTestService(t)
	resp, err := s.addMemory(context.Background(), &AddMemoryRequest{
		Content: "remember the go workshop notes", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("addMemory() error = %v", err)
	}
	if resp.Count == 0 {
		t.Errorf("addMemory() Count = 0, want > 0")
	}
}

func TestAddMemoryAsyncPathReturnsJobID(t *testing.T) {
	s := newTestServiceWithMode(t, degradation.ModeHybrid)
	resp, err := s.addMemory(context.Background(), &AddMemoryRequest{
		Content: "async write path test", UserID: "u1", Priority: "high",
	})
	if err != nil {
		t.Fatalf("addMemory() error = %v", err)
	}
	if resp.JobID == "" {
		t.Fatalf("addMemory() async path returned empty JobID")
	}

	if _, err := s.pipeline.WaitForJob(resp.JobID); err != nil {
		t.Fatalf("WaitForJob() error = %v", err)
	}
}

func TestAddMemoryRejectsDuplicate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.addMemory(ctx, &AddMemoryRequest{Content: "the quick brown fox jumps over the lazy dog", UserID: "u1"})
	if err != nil {
		t.Fatalf("first addMemory() error = %v", err)
	}

	_, err = s.addMemory(ctx, &AddMemoryRequest{Content: "the quick brown fox jumps over the lazy dog", UserID: "u1"})
	if err == nil {
		t.Fatal("expected duplicate rejection, got nil error")
	}
}

type mockDuplicateAuditor struct {
	calls []string
}

func (m *mockDuplicateAuditor) Record(ctx context.Context, userID, candidateID string, similarity float64, rejected bool) error {
	m.calls = append(m.calls, candidateID)
	return nil
}

func TestAddMemoryRecordsDuplicateVerdict(t *testing.T) {
	s := newTestService(t)
	audit := &mockDuplicateAuditor{}
	s.pipeline.audit = audit
	ctx := context.Background()

	_, err := s.addMemory(ctx, &AddMemoryRequest{Content: "a distinct phrase for auditing purposes", UserID: "u1"})
	if err != nil {
		t.Fatalf("first addMemory() error = %v", err)
	}
	if len(audit.calls) != 0 {
		t.Fatalf("expected no audit record on a non-duplicate write, got %d", len(audit.calls))
	}

	_, err = s.addMemory(ctx, &AddMemoryRequest{Content: "a distinct phrase for auditing purposes", UserID: "u1"})
	if err == nil {
		t.Fatal("expected duplicate rejection, got nil error")
	}
	if len(audit.calls) != 1 {
		t.Fatalf("expected one audit record after a duplicate rejection, got %d", len(audit.calls))
	}
	if audit.calls[0] == "" {
		t.Error("expected audit record to carry the matched candidate's id")
	}
}

func TestSearchMemoryServesFromCacheAfterAdd(t *testing.T) {
	s := newTestServiceWithMode(t, degradation.ModeHybrid)
	ctx := context.Background()
	addResp, err := s.addMemory(ctx, &AddMemoryRequest{Content: "distributed caching architecture notes", UserID: "u1", Priority: "high"})
	if err != nil {
		t.Fatalf("addMemory() error = %v", err)
	}
	if _, err := s.pipeline.WaitForJob(addResp.JobID); err != nil {
		t.Fatalf("WaitForJob() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	resp, err := s.searchMemory(ctx, &SearchMemoryRequest{Query: "distributed caching", UserID: "u1"})
	if err != nil {
		t.Fatalf("searchMemory() error = %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatalf("searchMemory() returned no results")
	}
	for _, mem := range resp.Results {
		if mem.Source == "hot" && mem.RelevanceScore <= 0 {
			t.Errorf("hot result %s has RelevanceScore = %v, want > 0", mem.ID, mem.RelevanceScore)
		}
	}
}

func TestDeleteMemoryRemovesFromCache(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	addResp, err := s.addMemory(ctx, &AddMemoryRequest{Content: "a note to delete later", UserID: "u1"})
	if err != nil || addResp.Count == 0 {
		t.Fatalf("addMemory() = %+v, err = %v", addResp, err)
	}

	all, _ := s.cloud.ListAll(ctx, "u1", 10)
	if len(all) == 0 {
		t.Fatal("expected at least one memory in demo cloud")
	}
	id := all[0].ID

	if _, err := s.deleteMemory(ctx, &DeleteMemoryRequest{MemoryID: id}); err != nil {
		t.Fatalf("deleteMemory() error = %v", err)
	}
}

func TestDeleteMemoryInvalidatesSearchCache(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	addResp, err := s.addMemory(ctx, &AddMemoryRequest{Content: "a searchable note about gophers", UserID: "u1"})
	if err != nil || addResp.Count == 0 {
		t.Fatalf("addMemory() = %+v, err = %v", addResp, err)
	}

	if _, err := s.searchMemory(ctx, &SearchMemoryRequest{Query: "gophers", UserID: "u1"}); err != nil {
		t.Fatalf("searchMemory() error = %v", err)
	}
	if cached, _ := s.cache.GetCachedSearch(ctx, "gophers", 10); cached == nil {
		t.Fatal("expected searchMemory() to have populated the search cache")
	}

	all, _ := s.cloud.ListAll(ctx, "u1", 10)
	if _, err := s.deleteMemory(ctx, &DeleteMemoryRequest{MemoryID: all[0].ID}); err != nil {
		t.Fatalf("deleteMemory() error = %v", err)
	}

	if cached, _ := s.cache.GetCachedSearch(ctx, "gophers", 10); cached != nil {
		t.Error("search cache entry survived delete_memory")
	}
}

func TestHandleInvalidateEventClearsSearchCache(t *testing.T) {
	s := newTestService(t)
	svc = s
	t.Cleanup(func() { svc = nil })
	ctx := context.Background()

	addResp, err := s.addMemory(ctx, &AddMemoryRequest{Content: "a memory invalidated via pub/sub", UserID: "u1"})
	if err != nil || addResp.Count == 0 {
		t.Fatalf("addMemory() = %+v, err = %v", addResp, err)
	}
	if _, err := s.searchMemory(ctx, &SearchMemoryRequest{Query: "invalidated pubsub", UserID: "u1"}); err != nil {
		t.Fatalf("searchMemory() error = %v", err)
	}
	if cached, _ := s.cache.GetCachedSearch(ctx, "invalidated pubsub", 10); cached == nil {
		t.Fatal("expected searchMemory() to have populated the search cache")
	}

	all, _ := s.cloud.ListAll(ctx, "u1", 10)
	event := &pubsub.InvalidationEvent{
		Version:     pubsub.EventVersion1,
		MemoryID:    all[0].ID,
		Operation:   pubsub.OpDelete,
		TriggeredAt: time.Now().UTC(),
		RequestID:   "req-1",
	}
	if err := HandleInvalidateEvent(ctx, event); err != nil {
		t.Fatalf("HandleInvalidateEvent() error = %v", err)
	}

	if cached, _ := s.cache.GetCachedSearch(ctx, "invalidated pubsub", 10); cached != nil {
		t.Error("search cache entry survived HandleInvalidateEvent")
	}
}

func TestDeduplicateMemoriesDryRunReportsGroupsWithoutDeleting(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	s.addMemory(ctx, &AddMemoryRequest{Content: "release notes for version one point oh", UserID: "u1"})
	s.addMemory(ctx, &AddMemoryRequest{Content: "release notes for version one point oh exactly", UserID: "u1", SkipDuplicateCheck: true})

	resp, err := s.deduplicateMemories(ctx, &DeduplicateRequest{UserID: "u1", SimilarityThreshold: 0.5})
	if err != nil {
		t.Fatalf("deduplicateMemories() error = %v", err)
	}
	if len(resp.Groups) != 1 || len(resp.Groups[0].Duplicates) != 1 {
		t.Errorf("dry run groups = %+v, want one group with one duplicate", resp.Groups)
	}
	if resp.Deleted != 0 {
		t.Errorf("dry run deleted = %d, want 0", resp.Deleted)
	}
}

func TestCacheStatsReportsCounters(t *testing.T) {
	s := newTestServiceWithMode(t, degradation.ModeHybrid)
	ctx := context.Background()
	resp, err := s.addMemory(ctx, &AddMemoryRequest{Content: "cache stats coverage note", UserID: "u1", Priority: "high"})
	if err != nil {
		t.Fatalf("addMemory() error = %v", err)
	}
	if _, err := s.pipeline.WaitForJob(resp.JobID); err != nil {
		t.Fatalf("WaitForJob() error = %v", err)
	}

	stats, err := s.cacheStats(ctx)
	if err != nil {
		t.Fatalf("cacheStats() error = %v", err)
	}
	if stats.CachedMemories == 0 {
		t.Errorf("cacheStats() CachedMemories = 0, want > 0")
	}
}

func TestSyncStatusReportsMode(t *testing.T) {
	s := newTestService(t)
	resp, err := s.syncStatus(context.Background())
	if err != nil {
		t.Fatalf("syncStatus() error = %v", err)
	}
	if resp.Mode != string(degradation.ModeHybrid) {
		t.Errorf("syncStatus() Mode = %v, want %v", resp.Mode, degradation.ModeHybrid)
	}
}

func TestGetAllMemoriesPaginates(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.addMemory(ctx, &AddMemoryRequest{Content: "paginated note content", UserID: "u1", Metadata: map[string]string{"i": string(rune('a' + i))}, SkipDuplicateCheck: true})
	}

	resp, err := s.getAllMemories(ctx, &GetAllMemoriesRequest{UserID: "u1", Limit: 2})
	if err != nil {
		t.Fatalf("getAllMemories() error = %v", err)
	}
	if resp.Returned > 2 {
		t.Errorf("getAllMemories() Returned = %d, want <= 2", resp.Returned)
	}
}
