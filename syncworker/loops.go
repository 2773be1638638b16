package syncworker

import (
	"context"
	"time"
)

// runLoops drives the three background passes on independent tickers until
// stopChan closes. Each pass's result and error are discarded (nothing is
// logged) and the loop continues - a single failed cloud refetch or a transient
// hot-store hiccup should never wedge the other two passes or the
// process, matching the fail-open posture the write pipeline and search
// planner already take toward cloud/hot-store errors.
func (s *Service) runLoops(ctx context.Context) {
	defer s.wg.Done()

	refreshTicker := time.NewTicker(s.cfg.RefreshInterval)
	drainTicker := time.NewTicker(s.cfg.DrainInterval)
	hygieneTicker := time.NewTicker(s.cfg.HygieneInterval)
	defer refreshTicker.Stop()
	defer drainTicker.Stop()
	defer hygieneTicker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-refreshTicker.C:
			s.Refresh(ctx)
		case <-drainTicker.C:
			s.Drain(ctx)
		case <-hygieneTicker.C:
			s.Hygiene(ctx)
		}
	}
}
