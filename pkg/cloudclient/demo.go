package cloudclient

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

// Demo is the in-memory substitute used when no cloud credential is
// configured (§4.2's demo/offline mode). It implements the same Client
// interface as HTTPClient; nothing downstream branches on which one is
// wired in.
type Demo struct {
	mu     sync.Mutex
	byUser map[string]map[string]models.Memory
}

// NewDemo returns an empty, process-local Client.
func NewDemo() *Demo {
	return &Demo{byUser: make(map[string]map[string]models.Memory)}
}

func (d *Demo) AddMemory(_ context.Context, userID string, input models.WriteInput, metadata map[string]string) ([]models.Memory, error) {
	if input.Empty() {
		return nil, models.NewValidationError("content or messages is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	m := models.Memory{
		ID:        uuid.New().String(),
		Content:   input.Text(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}
	bucket := d.byUser[userID]
	if bucket == nil {
		bucket = make(map[string]models.Memory)
		d.byUser[userID] = bucket
	}
	bucket[m.ID] = m
	return []models.Memory{m}, nil
}

func (d *Demo) Search(_ context.Context, userID, query string, limit int) ([]models.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	type scored struct {
		m     models.Memory
		score float64
	}
	var matches []scored
	for _, m := range d.byUser[userID] {
		score := utils.JaccardSimilarity(m.Content, query)
		if score > 0 {
			matches = append(matches, scored{m, score})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	if limit <= 0 || limit > len(matches) {
		limit = len(matches)
	}
	out := make([]models.Memory, 0, limit)
	for _, s := range matches[:limit] {
		m := s.m
		m.RelevanceScore = s.score
		out = append(out, m)
	}
	return out, nil
}

func (d *Demo) Get(_ context.Context, userID, id string) (models.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.byUser[userID][id]
	if !ok {
		return models.Memory{}, models.NewCloudClientError("get", 404, fmt.Errorf("memory %s not found", id))
	}
	return m, nil
}

func (d *Demo) ListAll(_ context.Context, userID string, limit int) ([]models.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]models.Memory, 0, len(d.byUser[userID]))
	for _, m := range d.byUser[userID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (d *Demo) Delete(_ context.Context, userID, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	bucket, ok := d.byUser[userID]
	if !ok {
		return models.NewCloudClientError("delete", 404, fmt.Errorf("memory %s not found", id))
	}
	if _, ok := bucket[id]; !ok {
		return models.NewCloudClientError("delete", 404, fmt.Errorf("memory %s not found", id))
	}
	delete(bucket, id)
	return nil
}

// Len reports the number of memories stored for userID; tests use this
// instead of reaching into the map directly.
func (d *Demo) Len(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byUser[userID])
}
