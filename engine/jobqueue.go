package engine

import (
	"sync"
	"time"

	"memhybrid.app/pkg/models"
)

// jobState is a job's position in the Created -> Running -> (Completed |
// Failed | TimedOut) lifecycle (§4.4).
type jobState int

const (
	jobCreated jobState = iota
	jobRunning
	jobCompleted
	jobFailed
	jobTimedOut
)

// jobTimeout is how long a dispatched job waits for a job:complete event
// before the queue resolves it itself with JobTimeout (§4.4).
const jobTimeout = 30 * time.Second

// jobResultRetention is how long a resolved job's entry stays in the map
// after completion before it is reaped, giving a concurrent WaitForJob
// call - dispatched from another goroutine right as the result comes in -
// a window to still find it by id (§3's "removed on completion" still
// holds, just not instantaneously). A var, not a const, so tests can
// shrink it instead of sleeping a full minute.
var jobResultRetention = 1 * time.Minute

// pendingJob tracks one in-flight async write, resolved either by a
// job:complete event arriving on the bus or by its own deadline timer.
type pendingJob struct {
	id        string
	state     jobState
	done      chan struct{}
	accepted  int
	err       error
	timer     *time.Timer
	resolveMu sync.Mutex
}

// jobQueue is the Job Queue half of C4: an in-process registry of pending
// jobs, each with its own deadline timer. It never leaks goroutines - every
// timer is stopped the moment a job resolves, by whichever path gets there
// first.
type jobQueue struct {
	mu   sync.Mutex
	jobs map[string]*pendingJob
}

func newJobQueue() *jobQueue {
	return &jobQueue{jobs: make(map[string]*pendingJob)}
}

// activeCount returns the number of jobs still in the Running state -
// registered but not yet resolved by an ack, a bus event, or a timeout.
func (q *jobQueue) activeCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, job := range q.jobs {
		select {
		case <-job.done:
		default:
			n++
		}
	}
	return n
}

// register creates a pendingJob in the Created state and arms its timeout
// timer. Callers must call resolve (directly, or via a later bus event)
// exactly once; register itself transitions the job to Running.
func (q *jobQueue) register(jobID string) *pendingJob {
	job := &pendingJob{
		id:    jobID,
		state: jobRunning,
		done:  make(chan struct{}),
	}
	job.timer = time.AfterFunc(jobTimeout, func() {
		q.resolveTimeout(jobID)
	})

	q.mu.Lock()
	q.jobs[jobID] = job
	q.mu.Unlock()
	return job
}

// resolve completes a pending job with a result on the in-process path:
// the worker pool's dispatchToCloud, or dispatchAsync when the pool is
// saturated.
func (q *jobQueue) resolve(jobID string, accepted int, err error) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	q.mu.Unlock()
	if !ok {
		return
	}
	state := jobCompleted
	if err != nil {
		state = jobFailed
	}
	job.finish(state, accepted, err)
	q.scheduleReap(jobID)
}

// resolveFromEvent completes a pending job on receipt of a job:complete
// pub/sub event (§4.4's cross-process delivery path).
func (q *jobQueue) resolveFromEvent(jobID string, accepted int, eventErr string) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	q.mu.Unlock()
	if !ok {
		return
	}
	if eventErr != "" {
		job.finish(jobFailed, accepted, models.NewCacheError("job_complete", errString(eventErr)))
	} else {
		job.finish(jobCompleted, accepted, nil)
	}
	q.scheduleReap(jobID)
}

// scheduleReap removes jobID from the map after jobResultRetention, once a
// resolved job's result has had time to be picked up by WaitForJob.
func (q *jobQueue) scheduleReap(jobID string) {
	time.AfterFunc(jobResultRetention, func() {
		q.mu.Lock()
		delete(q.jobs, jobID)
		q.mu.Unlock()
	})
}

func (q *jobQueue) resolveTimeout(jobID string) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if ok {
		delete(q.jobs, jobID)
	}
	q.mu.Unlock()
	if !ok {
		return
	}
	job.finishTimeout()
}

// finish resolves a job exactly once; subsequent calls (e.g. a timeout firing
// after the event already arrived) are no-ops because the timer is stopped
// here.
func (job *pendingJob) finish(state jobState, accepted int, err error) {
	job.resolveMu.Lock()
	defer job.resolveMu.Unlock()
	select {
	case <-job.done:
		return // already resolved
	default:
	}
	job.timer.Stop()
	job.state = state
	job.accepted = accepted
	job.err = err
	close(job.done)
}

func (job *pendingJob) finishTimeout() {
	job.resolveMu.Lock()
	defer job.resolveMu.Unlock()
	select {
	case <-job.done:
		return
	default:
	}
	job.state = jobTimedOut
	job.err = models.NewJobTimeout(job.id)
	close(job.done)
}

// wait blocks until the job resolves (at the latest when its jobTimeout
// timer fires); callers that
// need the result immediately (e.g. a synchronous caller that wants to
// surface job failure) use this. The async write path itself does not wait -
// it returns jobID to the caller right after dispatch.
func (job *pendingJob) wait() (int, error) {
	<-job.done
	return job.accepted, job.err
}

type stringError string

func (e stringError) Error() string { return string(e) }

func errString(s string) error { return stringError(s) }
