package skillrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"aide/internal/types"
)

// Client calls a skill RPC server. Transport errors on dispatch are wrapped
// as error responses so callers handle one shape.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("skill service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("skill service returned status %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Dispatch sends a skill request. The top-level intent rides in the request
// context under message_intent.
func (c *Client) Dispatch(ctx context.Context, intent types.MessageIntent, req types.SkillRequest) types.SkillResponse {
	if req.Context == nil {
		req.Context = make(map[string]any)
	}
	req.Context["message_intent"] = string(intent)

	var resp types.SkillResponse
	if err := c.post(ctx, "/skill/request", req, &resp); err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	return resp
}

// CollectActions polls the remote skills for heartbeat actions. Implements
// the scheduler's action source.
func (c *Client) CollectActions(ctx context.Context, userIDs []int64) ([]types.HeartbeatAction, error) {
	var resp heartbeatResponse
	if err := c.post(ctx, "/heartbeat", heartbeatRequest{UserIDs: userIDs}, &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

// Health checks the service and returns the loaded skill names.
func (c *Client) Health(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skill service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("skill service returned status %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return health.Skills, nil
}
