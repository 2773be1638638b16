package syncworker

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"memhybrid.app/engine"
	"memhybrid.app/pkg/pubsub"
	"memhybrid.app/pkg/utils"
)

// Drain reads cache:pending_memory, the hash the write pipeline's
// low/medium-priority branch populates instead of publishing memory:process
// immediately (§4.5). Entries older than DrainStaleness are published on
// memory:process when the degradation mode uses pub/sub, or simply dropped
// when it does not. HashDel happens only after the publish succeeds, so a
// failed publish leaves the entry for the next pass; a crash between the
// publish and the HashDel means the entry is published again next pass.
func (s *Service) Drain(ctx context.Context) (drained int, err error) {
	entries, err := s.store.HashGetAll(ctx, utils.PendingMemoryHashKey)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-s.cfg.DrainStaleness)
	usesPubSub := s.degr.Mode().UsesPubSub()

	for id, enqueuedAt := range entries {
		sec, parseErr := strconv.ParseInt(enqueuedAt, 10, 64)
		if parseErr != nil {
			continue
		}
		if time.Unix(sec, 0).UTC().After(cutoff) {
			continue // not stale yet, leave it for a later pass
		}

		if usesPubSub {
			err = s.publishProcess(ctx, id)
			if err != nil {
				continue
			}
		}
		// CloudOnly/Demo never serve hot-store reads (§4.9), so there is
		// nothing left to do for a stale entry beyond dropping it - the
		// cloud write already succeeded when the entry was queued.
		if delErr := s.store.HashDel(ctx, utils.PendingMemoryHashKey, id); delErr == nil {
			drained++
		}
	}
	return drained, nil
}

func (s *Service) publishProcess(ctx context.Context, memoryID string) error {
	_, err := engine.MemoryProcessTopic.Publish(ctx, &pubsub.MemoryProcessEvent{
		Version:     pubsub.EventVersion1,
		MemoryID:    memoryID,
		Priority:    "low",
		TriggeredAt: time.Now().UTC(),
		RequestID:   uuid.NewString(),
	})
	return err
}

//encore:api private method=POST path=/v1/sync/drain
func TriggerDrain(ctx context.Context) error {
	s, err := currentService()
	if err != nil {
		return err
	}
	_, err = s.Drain(ctx)
	return err
}
