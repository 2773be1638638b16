// Package engine is the public tool/RPC surface (§6): add_memory,
// search_memory, get_all_memories, delete_memory, deduplicate_memories,
// optimize_cache, cache_stats, and sync_status. It wires together the Cache
// Manager (C3), Cloud Client (C2), Hot-store Client (C1), the write
// pipeline (C5), the search planner (C6), and the Degradation Controller
// (C9) behind one Encore service.
package engine

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"encore.dev/storage/sqldb"
	"github.com/google/uuid"

	"memhybrid.app/cachemanager"
	"memhybrid.app/pkg/cloudclient"
	"memhybrid.app/pkg/degradation"
	"memhybrid.app/pkg/hotstore"
	"memhybrid.app/pkg/middleware"
	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/pubsub"
)

var engineDB = sqldb.Named("engine_db")

// requestIDOrNew returns the inbound request id, or mints one - events
// published to the bus always carry a non-empty RequestID (events.go's
// Validate requires it for tracing).
func requestIDOrNew(ctx context.Context) string {
	if id := middleware.RequestIDFromCtx(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// Service is the engine's Encore service.
//
//encore:service
type Service struct {
	cache    *cachemanager.Manager
	cloud    cloudclient.Client
	store    hotstore.Client
	degr     *degradation.Controller
	pipeline *pipeline
	planner  *searchPlanner
	limiter  *middleware.TokenBucket
	closers  []func() error
}

var (
	svc  *Service
	once sync.Once
)

// Config is the environment-provided configuration surface (§6).
type Config struct {
	CloudAPIKey  string
	CloudBaseURL string
	CloudUserID  string
	HotStoreURL  string
	ModeOverride degradation.Mode
	UserRPS      float64
	UserBurst    int
}

func configFromEnv() Config {
	cfg := Config{
		CloudAPIKey:  os.Getenv("CLOUD_API_KEY"),
		CloudBaseURL: envOr("CLOUD_BASE_URL", "https://api.example.com"),
		CloudUserID:  envOr("CLOUD_USER_ID", "default"),
		HotStoreURL:  os.Getenv("HOTSTORE_URL"),
		ModeOverride: degradation.Mode(os.Getenv("MODE")),
		UserRPS:      envOrFloat("USER_RATE_LIMIT_RPS", 20),
		UserBurst:    envOrInt("USER_RATE_LIMIT_BURST", 40),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// initService wires the whole system per §4.9's degradation matrix: a
// missing hot-store URL falls back to an in-process substitute or
// CloudOnly; a missing cloud API key falls back to the offline Demo cloud
// client.
func initService() (*Service, error) {
	var initErr error
	once.Do(func() {
		cfg := configFromEnv()

		store, closeStore := buildHotStore(cfg)
		cloud, realCloud := buildCloudClient(cfg)

		degr := degradation.New(store, realCloud, cfg.ModeOverride)

		cacheCfg := cachemanager.DefaultConfig()
		manager := cachemanager.New(store, cacheCfg)

		b := bus(noopBus{})
		if degr.Mode().UsesPubSub() {
			b = liveBus{}
		}

		var audit duplicateAuditor
		if log, err := NewDuplicateAuditLog(engineDB); err == nil {
			audit = log
		}
		// A Postgres-less deployment leaves audit nil; checkDuplicate treats
		// that as "don't persist verdicts" rather than failing add_memory.

		svc = &Service{
			cache:    manager,
			cloud:    cloud,
			store:    store,
			degr:     degr,
			pipeline: newPipeline(cloud, manager, store, degr, b, audit),
			planner:  newSearchPlanner(cloud, manager, store),
			limiter:  middleware.NewTokenBucket(cfg.UserRPS, cfg.UserBurst),
		}
		if closeStore != nil {
			svc.closers = append(svc.closers, closeStore)
		}
		go degr.Run(context.Background())
	})
	return svc, initErr
}

func buildHotStore(cfg Config) (hotstore.Client, func() error) {
	if cfg.HotStoreURL == "" {
		store, _, err := hotstore.NewSubstitute()
		if err != nil {
			return nil, nil
		}
		return store, store.Close
	}
	store := hotstore.New(hotstore.Options{Addr: cfg.HotStoreURL})
	return store, store.Close
}

func buildCloudClient(cfg Config) (cloudclient.Client, bool) {
	if cfg.CloudAPIKey == "" {
		return cloudclient.NewDemo(), false
	}
	return cloudclient.NewHTTPClient(cfg.CloudBaseURL, cfg.CloudAPIKey, 50, 100), true
}

func (s *Service) shutdown() {
	for _, c := range s.closers {
		c()
	}
}

func currentService() (*Service, error) {
	if svc == nil {
		return nil, errors.New("engine service not initialized")
	}
	return svc, nil
}

func defaultUserID(s *Service, userID string) string {
	if userID != "" {
		return userID
	}
	return configFromEnv().CloudUserID
}

// --- add_memory ---------------------------------------------------------

type AddMemoryRequest struct {
	Content            string            `json:"content,omitempty"`
	Messages           []models.Message  `json:"messages,omitempty"`
	UserID             string            `json:"user_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Priority           string            `json:"priority,omitempty"`
	Async              *bool             `json:"async,omitempty"`
	SkipDuplicateCheck bool              `json:"skip_duplicate_check,omitempty"`
}

type AddMemoryResponse struct {
	JobID    string `json:"jobId,omitempty"`
	Accepted int    `json:"accepted,omitempty"`
	Count    int    `json:"count,omitempty"`
}

//encore:api public method=POST path=/v1/memories
func AddMemory(ctx context.Context, req *AddMemoryRequest) (*AddMemoryResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return s.addMemory(ctx, req)
}

func (s *Service) addMemory(ctx context.Context, req *AddMemoryRequest) (*AddMemoryResponse, error) {
	userID := defaultUserID(s, req.UserID)
	if !s.limiter.Allow(userID) {
		return nil, models.NewValidationError("rate limit exceeded for user")
	}

	priority := models.Priority(req.Priority)
	result, err := s.pipeline.AddMemory(ctx, AddMemoryParams{
		UserID:             userID,
		Input:              models.WriteInput{Content: req.Content, Messages: req.Messages},
		Priority:           priority,
		Metadata:           req.Metadata,
		SkipDuplicateCheck: req.SkipDuplicateCheck,
	})
	if err != nil {
		return nil, err
	}
	if result.Async {
		return &AddMemoryResponse{JobID: result.JobID, Accepted: result.Accepted}, nil
	}
	return &AddMemoryResponse{Count: result.Accepted}, nil
}

// --- search_memory -------------------------------------------------------

type SearchMemoryRequest struct {
	Query       string `json:"query"`
	UserID      string `json:"user_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	PreferCache *bool  `json:"prefer_cache,omitempty"`
}

type SearchMemoryResponse struct {
	Results []models.Memory `json:"results"`
	Counts  SourceCounts    `json:"counts"`
}

type SourceCounts struct {
	Hot   int `json:"hot"`
	Cloud int `json:"cloud"`
}

//encore:api public method=POST path=/v1/memories/search
func SearchMemory(ctx context.Context, req *SearchMemoryRequest) (*SearchMemoryResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return s.searchMemory(ctx, req)
}

func (s *Service) searchMemory(ctx context.Context, req *SearchMemoryRequest) (*SearchMemoryResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	preferCache := true
	if req.PreferCache != nil {
		preferCache = *req.PreferCache
	}

	results, err := s.planner.SearchMemory(ctx, defaultUserID(s, req.UserID), req.Query, limit, preferCache)
	if err != nil {
		return nil, err
	}

	counts := SourceCounts{}
	for _, r := range results {
		if r.Source == "cloud" {
			counts.Cloud++
		} else {
			counts.Hot++
		}
	}
	return &SearchMemoryResponse{Results: results, Counts: counts}, nil
}

// --- delete_memory ---------------------------------------------------------

type DeleteMemoryRequest struct {
	MemoryID string `json:"memory_id"`
}

type DeleteMemoryResponse struct {
	OK bool `json:"ok"`
}

//encore:api public method=POST path=/v1/memories/delete
func DeleteMemory(ctx context.Context, req *DeleteMemoryRequest) (*DeleteMemoryResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return s.deleteMemory(ctx, req)
}

func (s *Service) deleteMemory(ctx context.Context, req *DeleteMemoryRequest) (*DeleteMemoryResponse, error) {
	userID := defaultUserID(s, "")
	if err := s.cloud.Delete(ctx, userID, req.MemoryID); err != nil {
		return nil, err
	}
	s.cache.DeleteMemory(ctx, req.MemoryID)
	s.cache.InvalidateSearchCache(ctx)

	if s.degr.Mode().UsesPubSub() {
		s.pipeline.bus.PublishInvalidate(ctx, &pubsub.InvalidationEvent{
			Version:     pubsub.EventVersion1,
			MemoryID:    req.MemoryID,
			Operation:   pubsub.OpDelete,
			TriggeredAt: time.Now().UTC(),
			RequestID:   requestIDOrNew(ctx),
		})
	}
	return &DeleteMemoryResponse{OK: true}, nil
}
