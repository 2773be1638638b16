package syncworker

import (
	"context"
)

// Refresh re-warms the hottest memories - at L1 TTL for those whose access
// count reaches FrequentAccessThreshold, by the normal placement rule
// otherwise - the background
// counterpart to engine's on-demand optimize_cache RPC (§6): same
// top-accessed source, same force-refetch-from-cloud behavior, run
// unattended every RefreshInterval instead of on request. A failed
// individual refetch is skipped, not fatal - the next tick tries again.
func (s *Service) Refresh(ctx context.Context) (refreshed int, err error) {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return 0, err
	}

	userID := s.defaultUserID()
	batch := s.cfg.RefreshBatch
	for _, top := range stats.TopAccessed {
		if refreshed >= batch {
			break
		}
		mem, err := s.cloud.Get(ctx, userID, top.ID)
		if err != nil {
			continue
		}
		highPriority := top.Count >= s.cache.Config().FrequentAccessThreshold
		if err := s.cache.PutMemory(ctx, top.ID, mem, highPriority); err != nil {
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

//encore:api private method=POST path=/v1/sync/refresh
func TriggerRefresh(ctx context.Context) error {
	s, err := currentService()
	if err != nil {
		return err
	}
	_, err = s.Refresh(ctx)
	return err
}
