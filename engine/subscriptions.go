package engine

import (
	"context"

	epubsub "encore.dev/pubsub"

	"memhybrid.app/pkg/pubsub"
)

// Subscriptions let a second instance of the engine react to writes made
// by another: evicting on cache:invalidate, re-caching on memory:process,
// and resolving its own pending job on job:complete (§4.4).

var _ = epubsub.NewSubscription(
	CacheInvalidateTopic,
	"engine-cache-invalidate",
	epubsub.SubscriptionConfig[*pubsub.InvalidationEvent]{
		Handler: HandleInvalidateEvent,
	},
)

func HandleInvalidateEvent(ctx context.Context, event *pubsub.InvalidationEvent) error {
	if svc == nil {
		return nil
	}
	if err := svc.cache.DeleteMemory(ctx, event.MemoryID); err != nil {
		return err
	}
	svc.cache.InvalidateSearchCache(ctx)
	return nil
}

var _ = epubsub.NewSubscription(
	MemoryProcessTopic,
	"engine-memory-process",
	epubsub.SubscriptionConfig[*pubsub.MemoryProcessEvent]{
		Handler: HandleMemoryProcessEvent,
	},
)

func HandleMemoryProcessEvent(ctx context.Context, event *pubsub.MemoryProcessEvent) error {
	if svc == nil {
		return nil
	}
	userID := defaultUserID(svc, "")
	mem, err := svc.cloud.Get(ctx, userID, event.MemoryID)
	if err != nil {
		return nil // best-effort re-cache, never fail the subscription
	}
	return svc.cache.PutMemory(ctx, event.MemoryID, mem, true)
}

var _ = epubsub.NewSubscription(
	JobCompleteTopic,
	"engine-job-complete",
	epubsub.SubscriptionConfig[*pubsub.JobCompleteEvent]{
		Handler: HandleJobCompleteEvent,
	},
)

func HandleJobCompleteEvent(ctx context.Context, event *pubsub.JobCompleteEvent) error {
	if svc == nil {
		return nil
	}
	svc.pipeline.HandleJobComplete(event)
	return nil
}
