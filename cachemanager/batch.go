package cachemanager

import (
	"context"
	"sync"

	"memhybrid.app/pkg/models"
)

const batchChunkSize = 10

// BatchGet fetches ids in chunks of 10, dispatched in parallel per chunk.
// Missing ids, and ids whose GetMemory failed, are simply absent from the
// result map; the returned error is always nil.
func (m *Manager) BatchGet(ctx context.Context, ids []string) (map[string]*models.Memory, error) {
	results := make(map[string]*models.Memory, len(ids))
	var mu sync.Mutex

	for _, chunk := range chunkStrings(ids, batchChunkSize) {
		var wg sync.WaitGroup
		for _, id := range chunk {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				mem, err := m.GetMemory(ctx, id)
				if err != nil || mem == nil {
					return
				}
				mu.Lock()
				results[id] = mem
				mu.Unlock()
			}(id)
		}
		wg.Wait()
	}
	return results, nil
}

// BatchSetItem pairs a memory with its placement priority for BatchSet.
type BatchSetItem struct {
	ID           string
	Memory       models.Memory
	HighPriority bool
}

// BatchSetResult reports per-item outcome so one failure never aborts the
// rest of the batch (§4.3's error-isolation requirement).
type BatchSetResult struct {
	ID    string
	Error error
}

// BatchSet writes every item, isolating failures: a failed PutMemory for
// one id does not prevent the others in the batch from succeeding.
func (m *Manager) BatchSet(ctx context.Context, items []BatchSetItem) []BatchSetResult {
	results := make([]BatchSetResult, len(items))
	var wg sync.WaitGroup

	for i, chunk := range chunkItems(items, batchChunkSize) {
		offset := i * batchChunkSize
		for j, item := range chunk {
			wg.Add(1)
			go func(idx int, item BatchSetItem) {
				defer wg.Done()
				err := m.PutMemory(ctx, item.ID, item.Memory, item.HighPriority)
				results[idx] = BatchSetResult{ID: item.ID, Error: err}
			}(offset+j, item)
		}
		wg.Wait()
	}
	return results
}

func chunkStrings(items []string, size int) [][]string {
	var chunks [][]string
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[0:size:size])
	}
	return append(chunks, items)
}

func chunkItems(items []BatchSetItem, size int) [][]BatchSetItem {
	var chunks [][]BatchSetItem
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[0:size:size])
	}
	return append(chunks, items)
}
