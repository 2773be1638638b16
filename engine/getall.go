package engine

import (
	"context"
	"strings"

	"memhybrid.app/pkg/models"
	"memhybrid.app/pkg/utils"
)

// maxResponseChars is the serialized-size threshold past which
// get_all_memories truncates each memory's content (§6).
const maxResponseChars = 40000

// maxTruncatedContentLen is how much of Content survives truncation.
const maxTruncatedContentLen = 100

type GetAllMemoriesRequest struct {
	UserID            string `json:"user_id,omitempty"`
	Limit             int    `json:"limit,omitempty"`
	Offset            int    `json:"offset,omitempty"`
	PreferCache       *bool  `json:"prefer_cache,omitempty"`
	IncludeCacheStats bool   `json:"include_cache_stats,omitempty"`
}

type GetAllMemoriesResponse struct {
	Total     int             `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
	Returned  int             `json:"returned"`
	HasMore   bool            `json:"hasMore"`
	Source    string          `json:"source"`
	Memories  []models.Memory `json:"memories"`
	Truncated bool            `json:"truncated,omitempty"`
}

//encore:api public method=GET path=/v1/memories
func GetAllMemories(ctx context.Context, req *GetAllMemoriesRequest) (*GetAllMemoriesResponse, error) {
	s, err := currentService()
	if err != nil {
		return nil, err
	}
	return s.getAllMemories(ctx, req)
}

func (s *Service) getAllMemories(ctx context.Context, req *GetAllMemoriesRequest) (*GetAllMemoriesResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	offset := req.Offset
	preferCache := true
	if req.PreferCache != nil {
		preferCache = *req.PreferCache
	}
	userID := defaultUserID(s, req.UserID)

	all, source, err := s.listAll(ctx, userID, preferCache)
	if err != nil {
		return nil, err
	}

	total := len(all)
	end := offset + limit
	if end > total {
		end = total
	}
	var page []models.Memory
	if offset < total {
		page = append(page, all[offset:end]...)
	}

	resp := &GetAllMemoriesResponse{
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		Returned: len(page),
		HasMore:  end < total,
		Source:   source,
		Memories: page,
	}
	if utils.EstimateEncodedSize(resp) > maxResponseChars {
		resp.Memories = truncateContents(page)
		resp.Truncated = true
	}
	return resp, nil
}

// listAll serves from the cache-side memory:* keyspace when preferCache is
// set and the hot store is in play, falling back to the cloud's
// authoritative list otherwise (§4.6's cache-first/cloud-first split
// applied to listing rather than search).
func (s *Service) listAll(ctx context.Context, userID string, preferCache bool) ([]models.Memory, string, error) {
	if preferCache && s.degr.Mode().UsesHotStore() {
		ids, err := s.scanMemoryIDs(ctx)
		if err == nil && len(ids) > 0 {
			hydrated, err := s.cache.BatchGet(ctx, ids)
			if err == nil {
				memories := make([]models.Memory, 0, len(hydrated))
				for _, mem := range hydrated {
					if mem.UserID == "" || mem.UserID == userID {
						memories = append(memories, *mem)
					}
				}
				if len(memories) > 0 {
					return memories, "hot", nil
				}
			}
		}
	}

	memories, err := s.cloud.ListAll(ctx, userID, 500)
	if err != nil {
		return nil, "", err
	}
	return memories, "cloud", nil
}

func (s *Service) scanMemoryIDs(ctx context.Context) ([]string, error) {
	var ids []string
	cursor := uint64(0)
	for {
		newCursor, keys, err := s.store.Scan(ctx, cursor, utils.MemoryKeyPrefix+"*", 100)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, utils.MemoryKeyPrefix))
		}
		if newCursor == 0 {
			break
		}
		cursor = newCursor
	}
	return ids, nil
}

func truncateContents(memories []models.Memory) []models.Memory {
	out := make([]models.Memory, len(memories))
	for i, m := range memories {
		c := m.Clone()
		if len(c.Content) > maxTruncatedContentLen {
			c.Content = c.Content[:maxTruncatedContentLen]
		}
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, 1)
		}
		c.Metadata["_truncated"] = "true"
		out[i] = c
	}
	return out
}
