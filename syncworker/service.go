// Package syncworker is the Background Sync Worker (C7): a periodic
// refresh of the hottest memories, a drain of the low/medium-priority
// pending-memory queue the write pipeline (C5) leaves behind, and a
// defensive hygiene sweep over the search-result cache. It builds its own
// Cache Manager, Cloud Client, Hot-store Client, and Degradation
// Controller (see initService) rather than sharing the engine service's,
// and coordinates with engine only through pub/sub topics and the shared
// hot store.
package syncworker

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"memhybrid.app/cachemanager"
	"memhybrid.app/pkg/cloudclient"
	"memhybrid.app/pkg/degradation"
	"memhybrid.app/pkg/hotstore"
)

//encore:service
type Service struct {
	cache   *cachemanager.Manager
	cloud   cloudclient.Client
	store   hotstore.Client
	degr    *degradation.Controller
	cfg     Config
	closers []func() error

	stopChan chan struct{}
	wg       sync.WaitGroup
}

var (
	svc  *Service
	once sync.Once
)

// Config holds the worker's tunable intervals and batch sizes, read from
// the environment the same way engine.Config is (§6's "ambient
// configuration" convention, no encore.dev/config or secrets observed
// anywhere in the source this is grounded on).
type Config struct {
	CloudAPIKey     string
	CloudBaseURL    string
	CloudUserID     string
	HotStoreURL     string
	ModeOverride    degradation.Mode
	RefreshInterval time.Duration
	RefreshBatch    int
	DrainInterval   time.Duration
	DrainStaleness  time.Duration
	HygieneInterval time.Duration
}

func configFromEnv() Config {
	return Config{
		CloudAPIKey:     os.Getenv("CLOUD_API_KEY"),
		CloudBaseURL:    envOr("CLOUD_BASE_URL", "https://api.example.com"),
		CloudUserID:     envOr("CLOUD_USER_ID", "default"),
		HotStoreURL:     os.Getenv("HOTSTORE_URL"),
		ModeOverride:    degradation.Mode(os.Getenv("MODE")),
		RefreshInterval: envOrDuration("SYNC_REFRESH_INTERVAL", 5*time.Minute),
		RefreshBatch:    envOrInt("SYNC_REFRESH_BATCH", 50),
		DrainInterval:   envOrDuration("SYNC_DRAIN_INTERVAL", 15*time.Second),
		DrainStaleness:  envOrDuration("SYNC_DRAIN_STALENESS", 60*time.Second),
		HygieneInterval: envOrDuration("SYNC_HYGIENE_INTERVAL", 10*time.Minute),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// initService builds its own hot-store/cloud-client/degradation-controller
// trio rather than reaching into engine's package-level svc, so this
// service starts up independently of engine's init order - the same
// independence the teacher's cache-manager and warming services have from
// each other, coordinated only through pub/sub topics and the shared Redis
// instance.
func initService() (*Service, error) {
	var initErr error
	once.Do(func() {
		cfg := configFromEnv()

		store, closeStore := buildHotStore(cfg)
		cloud, realCloud := buildCloudClient(cfg)
		degr := degradation.New(store, realCloud, cfg.ModeOverride)
		manager := cachemanager.New(store, cachemanager.DefaultConfig())

		svc = &Service{
			cache:    manager,
			cloud:    cloud,
			store:    store,
			degr:     degr,
			cfg:      cfg,
			stopChan: make(chan struct{}),
		}
		if closeStore != nil {
			svc.closers = append(svc.closers, closeStore)
		}
		go degr.Run(context.Background())
		svc.wg.Add(1)
		go svc.runLoops(context.Background())
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

func currentService() (*Service, error) {
	if svc == nil {
		return nil, errors.New("syncworker service not initialized")
	}
	return svc, nil
}

func (s *Service) defaultUserID() string {
	return s.cfg.CloudUserID
}

// shutdown stops the background loops (runLoops returns once stopChan
// closes) and closes the hot-store connection, mirroring
// engine.Service.shutdown. Nothing in this package calls it.
func (s *Service) shutdown() {
	close(s.stopChan)
	s.wg.Wait()
	for _, c := range s.closers {
		c()
	}
}
