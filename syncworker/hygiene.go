package syncworker

import (
	"context"

	"memhybrid.app/pkg/utils"
)

// Hygiene sweeps search:* for keys whose TTL reads negative: keys stored
// with no expiry (-1) or already gone (-2). Redis expires TTL'd keys on
// its own, so in the normal case this finds nothing
// - it exists purely as a defensive backstop against the search cache
// accumulating zombie keys on store implementations (or test doubles)
// that don't expire proactively, the same belt-and-suspenders role
// engine's getAllMemories SCAN fallback plays for listing.
func (s *Service) Hygiene(ctx context.Context) (swept int, err error) {
	cursor := uint64(0)
	for {
		newCursor, keys, scanErr := s.store.Scan(ctx, cursor, utils.SearchKeyPrefix+"*", 200)
		if scanErr != nil {
			return swept, scanErr
		}
		for _, key := range keys {
			ttl, ttlErr := s.store.TTL(ctx, key)
			if ttlErr != nil {
				continue
			}
			if ttl < 0 {
				if err := s.store.Del(ctx, key); err == nil {
					swept++
				}
			}
		}
		if newCursor == 0 {
			break
		}
		cursor = newCursor
	}
	return swept, nil
}

//encore:api private method=POST path=/v1/sync/hygiene
func TriggerHygiene(ctx context.Context) error {
	s, err := currentService()
	if err != nil {
		return err
	}
	_, err = s.Hygiene(ctx)
	return err
}
