package engine

import (
	"context"

	epubsub "encore.dev/pubsub"

	"memhybrid.app/pkg/pubsub"
)

// MemoryProcessTopic carries memory:process events: "re-fetch this memory
// from the cloud and re-cache it" (§4.4). The sync worker's drain pass and
// the write pipeline's high-priority ack both publish here.
var MemoryProcessTopic = epubsub.NewTopic[*pubsub.MemoryProcessEvent]("memory-process", epubsub.TopicConfig{
	DeliveryGuarantee: epubsub.AtLeastOnce,
})

// CacheInvalidateTopic carries cache:invalidate events for cross-instance
// eviction (§4.4).
var CacheInvalidateTopic = epubsub.NewTopic[*pubsub.InvalidationEvent]("cache-invalidate", epubsub.TopicConfig{
	DeliveryGuarantee: epubsub.AtLeastOnce,
})

// JobCompleteTopic resolves (or fails) a pending async write job (§4.4/§4.5).
var JobCompleteTopic = epubsub.NewTopic[*pubsub.JobCompleteEvent]("job-complete", epubsub.TopicConfig{
	DeliveryGuarantee: epubsub.AtLeastOnce,
})

// bus is the publish surface the write pipeline and sync worker depend on.
// It exists so CloudOnly/Demo mode (§4.9, pub/sub disabled) can swap in a
// no-op implementation without branching at every call site.
type bus interface {
	PublishProcess(ctx context.Context, e *pubsub.MemoryProcessEvent) error
	PublishInvalidate(ctx context.Context, e *pubsub.InvalidationEvent) error
	PublishJobComplete(ctx context.Context, e *pubsub.JobCompleteEvent) error
}

// liveBus publishes onto the real Encore topics above.
type liveBus struct{}

func (liveBus) PublishProcess(ctx context.Context, e *pubsub.MemoryProcessEvent) error {
	_, err := MemoryProcessTopic.Publish(ctx, e)
	return err
}

func (liveBus) PublishInvalidate(ctx context.Context, e *pubsub.InvalidationEvent) error {
	_, err := CacheInvalidateTopic.Publish(ctx, e)
	return err
}

func (liveBus) PublishJobComplete(ctx context.Context, e *pubsub.JobCompleteEvent) error {
	_, err := JobCompleteTopic.Publish(ctx, e)
	return err
}

// noopBus discards every publish; used in CloudOnly/Demo mode where §4.9
// disables the pub/sub bus entirely.
type noopBus struct{}

func (noopBus) PublishProcess(context.Context, *pubsub.MemoryProcessEvent) error   { return nil }
func (noopBus) PublishInvalidate(context.Context, *pubsub.InvalidationEvent) error { return nil }
func (noopBus) PublishJobComplete(context.Context, *pubsub.JobCompleteEvent) error { return nil }
