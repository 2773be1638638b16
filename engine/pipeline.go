package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"memhybrid.app/cachemanager"
	"memhybrid.app/pkg/cloudclient"
	"memhybrid.app/pkg/degradation"
	"memhybrid.app/pkg/hotstore"
	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/pubsub"
	"memhybrid.app/pkg/utils"
)

// pipeline is the Async Write Pipeline (C5): it normalizes input, runs the
// duplicate gate, and either dispatches the cloud write asynchronously
// through the job queue/worker pool or falls back to a synchronous call
// when the bus is unavailable (§4.5).
type pipeline struct {
	cloud cloudclient.Client
	cache *cachemanager.Manager
	store hotstore.Client
	degr  *degradation.Controller
	bus   bus
	queue *jobQueue
	pool  *workerPool
	audit duplicateAuditor
}

func newPipeline(cloud cloudclient.Client, cache *cachemanager.Manager, store hotstore.Client, degr *degradation.Controller, b bus, audit duplicateAuditor) *pipeline {
	p := &pipeline{
		cloud: cloud,
		cache: cache,
		store: store,
		degr:  degr,
		bus:   b,
		queue: newJobQueue(),
		audit: audit,
	}
	p.pool = newWorkerPool(16, 3, 100*time.Millisecond, p.dispatchToCloud)
	return p
}

// AddMemoryParams is the normalized add_memory request (§6).
type AddMemoryParams struct {
	UserID             string
	Input              models.WriteInput
	Priority           models.Priority
	Metadata           map[string]string
	SkipDuplicateCheck bool
}

// AddMemoryResult is the add_memory response. Memories is populated only on
// the synchronous path; JobID/Accepted are populated on the async path.
type AddMemoryResult struct {
	JobID    string
	Accepted int
	Memories []models.Memory
	Async    bool
}

// AddMemory runs the full §4.5 pipeline.
func (p *pipeline) AddMemory(ctx context.Context, params AddMemoryParams) (AddMemoryResult, error) {
	if params.Input.Empty() {
		return AddMemoryResult{}, models.NewValidationError("content or messages is required")
	}
	if !params.Priority.Valid() {
		return AddMemoryResult{}, models.NewValidationError("invalid priority")
	}
	priority := params.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	text := params.Input.Text()

	if !params.SkipDuplicateCheck {
		dup, err := checkDuplicate(ctx, p.cloud, p.audit, params.UserID, text)
		if err != nil {
			return AddMemoryResult{}, err
		}
		if dup != nil {
			return AddMemoryResult{}, dup
		}
	}

	mode := p.degr.Mode()
	if mode.UsesPubSub() {
		if result, ok := p.dispatchAsync(ctx, params, priority); ok {
			return result, nil
		}
		// queue full or pool unavailable: fall through to synchronous path
	}
	return p.addMemorySync(ctx, params, priority)
}

// dispatchAsync registers a pending job and hands the cloud write to the
// worker pool, returning immediately with the job id (§4.5 step 3). ok is
// false if the pool's queue was full, in which case the caller falls back
// to the synchronous path instead of silently dropping the write.
func (p *pipeline) dispatchAsync(ctx context.Context, params AddMemoryParams, priority models.Priority) (AddMemoryResult, bool) {
	jobID := uuid.NewString()
	p.queue.register(jobID)

	task := writeTask{
		jobID:    jobID,
		userID:   params.UserID,
		text:     params.Input.Text(),
		priority: string(priority),
		metadata: params.Metadata,
	}
	if !p.pool.submit(task) {
		p.queue.resolve(jobID, 0, models.NewValidationError("worker pool saturated"))
		return AddMemoryResult{}, false
	}
	return AddMemoryResult{JobID: jobID, Accepted: 1, Async: true}, true
}

// dispatchToCloud is the workerPool's execFunc: it performs the cloud
// write, then applies §4.5's post-ack caching rules before resolving the
// job via job:complete.
func (p *pipeline) dispatchToCloud(ctx context.Context, task writeTask) error {
	input := models.WriteInput{Content: task.text}
	memories, err := p.cloud.AddMemory(ctx, task.userID, input, task.metadata)
	if err != nil {
		p.completeJob(ctx, task.jobID, 0, err)
		return err
	}

	highPriority := task.priority == string(models.PriorityHigh)
	for _, mem := range memories {
		mem := mem
		// Every async-path write lands at L1 TTL regardless of priority
		// (§4.5 step 3c) so a read-your-writes lookup right after an
		// accepted low/medium-priority add_memory still hits.
		if err := p.cache.PutMemory(ctx, mem.ID, mem, true); err != nil {
			continue
		}
		if highPriority {
			p.bus.PublishProcess(ctx, &pubsub.MemoryProcessEvent{
				Version:     pubsub.EventVersion1,
				MemoryID:    mem.ID,
				Priority:    task.priority,
				TriggeredAt: nowUTC(),
				RequestID:   task.jobID,
			})
		} else {
			p.markPending(ctx, mem.ID)
		}
	}

	if _, err := p.cache.InvalidateSearchCache(ctx); err != nil {
		// search cache invalidation failure does not fail the write
	}

	p.completeJob(ctx, task.jobID, len(memories), nil)
	return nil
}

func (p *pipeline) completeJob(ctx context.Context, jobID string, accepted int, err error) {
	p.queue.resolve(jobID, accepted, err)
	evt := &pubsub.JobCompleteEvent{
		Version:     pubsub.EventVersion1,
		JobID:       jobID,
		Accepted:    accepted,
		CompletedAt: nowUTC(),
	}
	if err != nil {
		evt.Error = err.Error()
	}
	p.bus.PublishJobComplete(ctx, evt)
}

// markPending records a low/medium priority memory in the pending-memory
// hash for the sync worker's drain pass (§4.7), while the memory itself is
// still written to the cache immediately for read-your-writes (§4.5).
func (p *pipeline) markPending(ctx context.Context, memoryID string) {
	p.store.HashSet(ctx, utils.PendingMemoryHashKey, memoryID, strconv.FormatInt(nowUTC().Unix(), 10))
}

// addMemorySync is the §4.5 fallback path used in CloudOnly mode or when
// the async pool is saturated: no job is created, the cloud call blocks the
// caller, and the result is returned directly.
func (p *pipeline) addMemorySync(ctx context.Context, params AddMemoryParams, priority models.Priority) (AddMemoryResult, error) {
	memories, err := p.cloud.AddMemory(ctx, params.UserID, params.Input, params.Metadata)
	if err != nil {
		return AddMemoryResult{}, err
	}

	if priority == models.PriorityHigh && p.degr.Mode().UsesHotStore() {
		for _, mem := range memories {
			p.cache.PutMemory(ctx, mem.ID, mem, true)
		}
	}
	if p.degr.Mode().UsesHotStore() {
		p.cache.InvalidateSearchCache(ctx)
	}

	return AddMemoryResult{Memories: memories, Accepted: len(memories)}, nil
}

// WaitForJob blocks until jobID resolves; used by tests that need the async
// result synchronously.
func (p *pipeline) WaitForJob(jobID string) (int, error) {
	p.queue.mu.Lock()
	job, ok := p.queue.jobs[jobID]
	p.queue.mu.Unlock()
	if !ok {
		return 0, models.NewValidationError("unknown job id")
	}
	return job.wait()
}

// HandleJobComplete resolves a pending job from a job:complete event
// delivered over the bus (the cross-process path; the in-process path
// resolves directly from dispatchToCloud).
func (p *pipeline) HandleJobComplete(e *pubsub.JobCompleteEvent) {
	p.queue.resolveFromEvent(e.JobID, e.Accepted, e.Error)
}

func nowUTC() time.Time { return time.Now().UTC() }

// ActiveJobCount reports jobs still awaiting resolution, used by
// cache_stats/sync_status's pending_jobs field.
func (p *pipeline) ActiveJobCount() int { return p.queue.activeCount() }
