package pubsub

import (
	"testing"
	"time"
)

func TestInvalidationEventValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   InvalidationEvent
		wantErr bool
	}{
		{
			name: "valid delete",
			event: InvalidationEvent{
				Version: EventVersion1, MemoryID: "mem-1", Operation: OpDelete,
				TriggeredAt: now, RequestID: "req-123",
			},
			wantErr: false,
		},
		{
			name: "valid update",
			event: InvalidationEvent{
				Version: EventVersion1, MemoryID: "mem-1", Operation: OpUpdate,
				TriggeredAt: now, RequestID: "req-123",
			},
			wantErr: false,
		},
		{
			name:    "invalid version",
			event:   InvalidationEvent{Version: 999, MemoryID: "mem-1", Operation: OpDelete, TriggeredAt: now, RequestID: "req-123"},
			wantErr: true,
		},
		{
			name:    "missing memory id",
			event:   InvalidationEvent{Version: EventVersion1, Operation: OpDelete, TriggeredAt: now, RequestID: "req-123"},
			wantErr: true,
		},
		{
			name:    "invalid operation",
			event:   InvalidationEvent{Version: EventVersion1, MemoryID: "mem-1", Operation: "noop", TriggeredAt: now, RequestID: "req-123"},
			wantErr: true,
		},
		{
			name:    "zero triggered_at",
			event:   InvalidationEvent{Version: EventVersion1, MemoryID: "mem-1", Operation: OpDelete, RequestID: "req-123"},
			wantErr: true,
		},
		{
			name:    "missing request id",
			event:   InvalidationEvent{Version: EventVersion1, MemoryID: "mem-1", Operation: OpDelete, TriggeredAt: now},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInvalidationEventJSON(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	event := InvalidationEvent{
		Version: EventVersion1, MemoryID: "mem-1", Operation: OpDelete,
		TriggeredAt: now, RequestID: "req-123",
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	decoded, err := InvalidationEventFromJSON(data)
	if err != nil {
		t.Fatalf("InvalidationEventFromJSON() error = %v", err)
	}
	if decoded.MemoryID != event.MemoryID || decoded.Operation != event.Operation {
		t.Errorf("decoded = %+v, want %+v", decoded, event)
	}
	if !decoded.TriggeredAt.Equal(event.TriggeredAt) {
		t.Errorf("TriggeredAt = %v, want %v", decoded.TriggeredAt, event.TriggeredAt)
	}
}

func TestMemoryProcessEventValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   MemoryProcessEvent
		wantErr bool
	}{
		{
			name:    "valid",
			event:   MemoryProcessEvent{Version: EventVersion1, MemoryID: "mem-1", Priority: "high", TriggeredAt: now, RequestID: "req-1"},
			wantErr: false,
		},
		{
			name:    "invalid version",
			event:   MemoryProcessEvent{Version: 2, MemoryID: "mem-1", TriggeredAt: now, RequestID: "req-1"},
			wantErr: true,
		},
		{
			name:    "missing memory id",
			event:   MemoryProcessEvent{Version: EventVersion1, TriggeredAt: now, RequestID: "req-1"},
			wantErr: true,
		},
		{
			name:    "zero triggered_at",
			event:   MemoryProcessEvent{Version: EventVersion1, MemoryID: "mem-1", RequestID: "req-1"},
			wantErr: true,
		},
		{
			name:    "missing request id",
			event:   MemoryProcessEvent{Version: EventVersion1, MemoryID: "mem-1", TriggeredAt: now},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobCompleteEventValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   JobCompleteEvent
		wantErr bool
	}{
		{name: "valid", event: JobCompleteEvent{Version: EventVersion1, JobID: "job-1", Accepted: 1, CompletedAt: now}, wantErr: false},
		{name: "invalid version", event: JobCompleteEvent{Version: 9, JobID: "job-1", CompletedAt: now}, wantErr: true},
		{name: "missing job id", event: JobCompleteEvent{Version: EventVersion1, CompletedAt: now}, wantErr: true},
		{name: "zero completed_at", event: JobCompleteEvent{Version: EventVersion1, JobID: "job-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobCompleteEventJSON(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	event := JobCompleteEvent{Version: EventVersion1, JobID: "job-1", Accepted: 3, CompletedAt: now}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	decoded, err := JobCompleteEventFromJSON(data)
	if err != nil {
		t.Fatalf("JobCompleteEventFromJSON() error = %v", err)
	}
	if decoded.Accepted != event.Accepted || decoded.JobID != event.JobID {
		t.Errorf("decoded = %+v, want %+v", decoded, event)
	}
}
