package cloudclient

import (
	"encoding/json"
	"fmt"

	"memhybrid.app/pkg/models"
)

// Normalize accepts any of the remote API's three documented response
// shapes for a list of memories - a bare array, {"results": [...]}, or
// {"memories": [...]} - and returns a single []models.Memory. Every other
// component in this repository sees only the normalized slice.
func Normalize(raw json.RawMessage) ([]models.Memory, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var arr []models.Memory
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}

	var wrapped struct {
		Results  []models.Memory `json:"results"`
		Memories []models.Memory `json:"memories"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, models.NewCloudServerError("normalize", 0, fmt.Errorf("unrecognized response shape: %w", err))
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}
	return wrapped.Memories, nil
}
