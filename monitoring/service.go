// Package monitoring is an observability backstop that runs alongside
// engine's cache_stats and sync_status RPCs (§6); neither RPC reads from
// it. It subscribes to the same
// pub/sub topics engine publishes (cache:invalidate, memory:process,
// job:complete), keeps running counters of each, and records a
// Postgres-backed alert when the job failure rate crosses a threshold.
// Trimmed from the teacher's sliding-window aggregator and multi-rule
// alert engine down to the event types this system's bus actually
// carries - see DESIGN.md for what was dropped and why.
package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"encore.dev/storage/sqldb"
)

// AlertStore is the subset of *AlertHistory the service depends on,
// broken out so tests can substitute an in-memory recorder instead of a
// real Postgres connection - the same shape invalidation/service.go uses
// for AuditLoggerInterface.
type AlertStore interface {
	Record(ctx context.Context, rule string, currentValue, threshold float64) error
	Recent(ctx context.Context, limit int) ([]AlertRecord, error)
}

//encore:service
type Service struct {
	counters *Counters
	alerts   AlertStore
	config   Config

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Config holds monitoring's evaluation cadence.
type Config struct {
	AlertEvalInterval time.Duration
}

func DefaultConfig() Config {
	return Config{AlertEvalInterval: 10 * time.Second}
}

var monitoringDB = sqldb.Named("monitoring_db")

var (
	svc  *Service
	once sync.Once
)

func initService() (*Service, error) {
	var initErr error
	once.Do(func() {
		history, err := NewAlertHistory(monitoringDB)
		if err != nil {
			initErr = err
			return
		}
		svc = &Service{
			counters: &Counters{},
			alerts:   history,
			config:   DefaultConfig(),
			stopChan: make(chan struct{}),
		}
		svc.wg.Add(1)
		go svc.runAlertLoop(context.Background())
	})
	return svc, initErr
}

func currentService() (*Service, error) {
	if svc == nil {
		return nil, errors.New("monitoring service not initialized")
	}
	return svc, nil
}

func (s *Service) runAlertLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.AlertEvalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evaluateErrorRate(ctx, s.counters.Snapshot())
		}
	}
}

func (s *Service) shutdown() {
	close(s.stopChan)
	s.wg.Wait()
}

// GetMetricsResponse is the current, unwindowed counter snapshot -
// unlike the teacher's windowed/percentile report, these counters never
// reset, matching how cachemanager.Stats and the Degradation Controller
// report cumulative state rather than a rolling window.
type GetMetricsResponse struct {
	Snapshot
	ErrorRate float64 `json:"error_rate"`
}

//encore:api public method=GET path=/v1/monitoring/metrics
func GetMetrics(ctx context.Context) (*GetMetricsResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	snap := s.counters.Snapshot()
	return &GetMetricsResponse{Snapshot: snap, ErrorRate: snap.errorRate()}, nil
}

type GetAlertsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type GetAlertsResponse struct {
	Alerts []AlertRecord `json:"alerts"`
}

//encore:api public method=GET path=/v1/monitoring/alerts
func GetAlerts(ctx context.Context, req *GetAlertsRequest) (*GetAlertsResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := s.alerts.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &GetAlertsResponse{Alerts: records}, nil
}
