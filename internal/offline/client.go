package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
)

// SyncClient is the transport the engine drains through. Abstracted so tests
// can script server responses without a network.
type SyncClient interface {
	// SubmitOrder sends a single order and returns its per-offline_id result.
	// An error return means the outcome is UNKNOWN (network failure, timeout,
	// 5xx) — the caller must retry and re-check idempotency, never assume
	// non-delivery.
	SubmitOrder(ctx context.Context, order dto.CreateOrderRequest) (*dto.SyncResult, error)
	// Ping reports server reachability (used as the connectivity probe).
	Ping(ctx context.Context) bool
}

// HTTPClient talks to the server's sync endpoint with a bounded timeout.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) SubmitOrder(ctx context.Context, order dto.CreateOrderRequest) (*dto.SyncResult, error) {
	body, err := json.Marshal(dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{order}})
	if err != nil {
		return nil, fmt.Errorf("sync client: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders/sync-batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		// Includes timeouts. The request may or may not have been applied —
		// the server's idempotency check arbitrates on retry.
		return nil, fmt.Errorf("sync client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync client: server returned %d", resp.StatusCode)
	}

	var batch dto.SyncBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("sync client: decode: %w", err)
	}
	if len(batch.Results) != 1 {
		return nil, fmt.Errorf("sync client: expected 1 result, got %d", len(batch.Results))
	}
	return &batch.Results[0], nil
}

func (c *HTTPClient) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
