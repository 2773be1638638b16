// Package cloudclient is the HTTP client for the remote memory API (C2):
// add/search/get/list/delete, with retries, timeouts, typed errors, and
// response-shape normalization. It is the only component besides the hot
// store that talks to the outside world.
package cloudclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"memhybrid.app/pkg/models"
)

// Client is the public C2 contract, implemented by both *HTTPClient and the
// offline *Demo substitute so the rest of the system never branches on
// which one is live.
type Client interface {
	AddMemory(ctx context.Context, userID string, input models.WriteInput, metadata map[string]string) ([]models.Memory, error)
	Search(ctx context.Context, userID, query string, limit int) ([]models.Memory, error)
	Get(ctx context.Context, userID, id string) (models.Memory, error)
	ListAll(ctx context.Context, userID string, limit int) ([]models.Memory, error)
	Delete(ctx context.Context, userID, id string) error
}

const maxRetries = 3

// HTTPClient implements Client over net/http. A single golang.org/x/time/rate
// Limiter throttles all outbound calls regardless of which operation issues
// them, independent of the engine's own per-user_id token bucket on the
// inbound side.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a client against baseURL, authenticating with apiKey.
// requestsPerSecond bounds outbound call volume; burst allows short spikes
// (the engine's async write pipeline dispatches in bursts of up to its
// worker-pool size).
func NewHTTPClient(baseURL, apiKey string, requestsPerSecond float64, burst int) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

type addMemoryRequest struct {
	Content  string            `json:"content,omitempty"`
	Messages []models.Message  `json:"messages,omitempty"`
	UserID   string            `json:"user_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (c *HTTPClient) AddMemory(ctx context.Context, userID string, input models.WriteInput, metadata map[string]string) ([]models.Memory, error) {
	body := addMemoryRequest{UserID: userID, Metadata: metadata}
	if len(input.Messages) > 0 {
		body.Messages = input.Messages
	} else {
		body.Content = input.Content
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, "add_memory", http.MethodPost, "/v1/memories", body, &raw); err != nil {
		return nil, err
	}
	return Normalize(raw)
}

func (c *HTTPClient) Search(ctx context.Context, userID, query string, limit int) ([]models.Memory, error) {
	path := fmt.Sprintf("/v1/memories/search?user_id=%s&query=%s&limit=%d", escape(userID), escape(query), limit)
	var raw json.RawMessage
	if err := c.doJSON(ctx, "search", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return Normalize(raw)
}

func (c *HTTPClient) Get(ctx context.Context, userID, id string) (models.Memory, error) {
	path := fmt.Sprintf("/v1/memories/%s?user_id=%s", escape(id), escape(userID))
	var m models.Memory
	if err := c.doJSON(ctx, "get", http.MethodGet, path, nil, &m); err != nil {
		return models.Memory{}, err
	}
	return m, nil
}

func (c *HTTPClient) ListAll(ctx context.Context, userID string, limit int) ([]models.Memory, error) {
	path := fmt.Sprintf("/v1/memories?user_id=%s&limit=%d", escape(userID), limit)
	var raw json.RawMessage
	if err := c.doJSON(ctx, "list_all", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return Normalize(raw)
}

func (c *HTTPClient) Delete(ctx context.Context, userID, id string) error {
	path := fmt.Sprintf("/v1/memories/%s?user_id=%s", escape(id), escape(userID))
	return c.doJSON(ctx, "delete", http.MethodDelete, path, nil, nil)
}

// doJSON issues a single logical call, retrying retryable failures with
// exponential backoff up to maxRetries times.
func (c *HTTPClient) doJSON(ctx context.Context, op, method, path string, body, out interface{}) error {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return models.NewValidationError(fmt.Sprintf("encoding %s request: %v", op, err))
		}
		bodyBytes = b
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return models.NewCloudNetworkError(op, ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return models.NewCloudNetworkError(op, err)
		}

		err := c.attempt(ctx, method, path, bodyBytes, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if cerr, ok := err.(*models.Error); !ok || !cerr.Kind.IsRetryable() {
			return err
		}
	}
	return lastErr
}

func (c *HTTPClient) attempt(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return models.NewValidationError(fmt.Sprintf("building request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.NewCloudNetworkError(path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewCloudNetworkError(path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.NewCloudAuthError(path, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 500:
		return models.NewCloudServerError(path, resp.StatusCode, fmt.Errorf("%s", respBody))
	case resp.StatusCode >= 400:
		return models.NewCloudClientError(path, resp.StatusCode, fmt.Errorf("%s", respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return models.NewCloudServerError(path, resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
}

func escape(s string) string {
	return url.QueryEscape(s)
}
