package monitoring

import (
	"context"

	epubsub "encore.dev/pubsub"

	"memhybrid.app/engine"
	"memhybrid.app/pkg/pubsub"
)

// Subscribing to topics declared in another service's package is the same
// cross-service wiring the teacher's cache-manager uses for the
// invalidation package's CacheInvalidateTopic.

var _ = epubsub.NewSubscription(
	engine.CacheInvalidateTopic,
	"monitoring-cache-invalidate",
	epubsub.SubscriptionConfig[*pubsub.InvalidationEvent]{
		Handler: HandleInvalidateMetric,
	},
)

func HandleInvalidateMetric(ctx context.Context, event *pubsub.InvalidationEvent) error {
	if svc == nil {
		return nil
	}
	svc.counters.Invalidations.Inc()
	return nil
}

var _ = epubsub.NewSubscription(
	engine.MemoryProcessTopic,
	"monitoring-memory-process",
	epubsub.SubscriptionConfig[*pubsub.MemoryProcessEvent]{
		Handler: HandleMemoryProcessMetric,
	},
)

func HandleMemoryProcessMetric(ctx context.Context, event *pubsub.MemoryProcessEvent) error {
	if svc == nil {
		return nil
	}
	svc.counters.MemoryProcess.Inc()
	return nil
}

var _ = epubsub.NewSubscription(
	engine.JobCompleteTopic,
	"monitoring-job-complete",
	epubsub.SubscriptionConfig[*pubsub.JobCompleteEvent]{
		Handler: HandleJobCompleteMetric,
	},
)

func HandleJobCompleteMetric(ctx context.Context, event *pubsub.JobCompleteEvent) error {
	if svc == nil {
		return nil
	}
	if event.Error != "" {
		svc.counters.JobsFailed.Inc()
	} else {
		svc.counters.JobsCompleted.Inc()
	}
	return nil
}
