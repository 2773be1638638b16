package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventVersion1 is the only schema version in use today. Future versions
// add fields and never remove them; consumers check Version before reading
// fields that didn't exist in earlier versions.
const EventVersion1 = 1

// InvalidationOp names the write that triggered a cache:invalidate event.
type InvalidationOp string

const (
	OpDelete InvalidationOp = "delete"
	OpUpdate InvalidationOp = "update"
)

// InvalidationEvent is published on ChannelCacheInvalidate. Subscribers
// remove MemoryID from every cache tier and clear the search cache; a
// second delivery for an already-evicted id is a no-op.
type InvalidationEvent struct {
	Version     int            `json:"version"`
	MemoryID    string         `json:"memory_id"`
	Operation   InvalidationOp `json:"operation"`
	TriggeredAt time.Time      `json:"triggered_at"`
	RequestID   string         `json:"request_id"`
}

func (e *InvalidationEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.MemoryID == "" {
		return errors.New("memory_id is required")
	}
	if e.Operation != OpDelete && e.Operation != OpUpdate {
		return fmt.Errorf("invalid operation: %s", e.Operation)
	}
	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}
	if e.RequestID == "" {
		return errors.New("request_id is required for tracing")
	}
	return nil
}

func (e *InvalidationEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

func InvalidationEventFromJSON(data []byte) (*InvalidationEvent, error) {
	var e InvalidationEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal InvalidationEvent: %w", err)
	}
	return &e, nil
}

// MemoryProcessEvent is published on ChannelMemoryProcess. The subscriber
// re-fetches MemoryID from the cloud and re-caches it.
type MemoryProcessEvent struct {
	Version     int               `json:"version"`
	MemoryID    string            `json:"memory_id"`
	Priority    string            `json:"priority"`
	TriggeredAt time.Time         `json:"triggered_at"`
	Meta        map[string]string `json:"meta,omitempty"`
	RequestID   string            `json:"request_id"`
}

func (e *MemoryProcessEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.MemoryID == "" {
		return errors.New("memory_id is required")
	}
	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}
	if e.RequestID == "" {
		return errors.New("request_id is required for tracing")
	}
	return nil
}

func (e *MemoryProcessEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

func MemoryProcessEventFromJSON(data []byte) (*MemoryProcessEvent, error) {
	var e MemoryProcessEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MemoryProcessEvent: %w", err)
	}
	return &e, nil
}

// JobCompleteEvent is published on ChannelJobComplete to resolve (or
// reject, via Error) the pending-job entry matching JobID.
type JobCompleteEvent struct {
	Version     int       `json:"version"`
	JobID       string    `json:"job_id"`
	Accepted    int       `json:"accepted"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	RequestID   string    `json:"request_id"`
}

func (e *JobCompleteEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.JobID == "" {
		return errors.New("job_id is required")
	}
	if e.CompletedAt.IsZero() {
		return errors.New("completed_at cannot be zero")
	}
	return nil
}

func (e *JobCompleteEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

func JobCompleteEventFromJSON(data []byte) (*JobCompleteEvent, error) {
	var e JobCompleteEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JobCompleteEvent: %w", err)
	}
	return &e, nil
}
