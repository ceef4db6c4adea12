package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kelhray/dispatch/pkg/models"
)

// HTTPClient talks to the execution gateway over its JSON HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a gateway client for the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type spawnResponse struct {
	SessionID string `json:"session_id"`
}

type pollResponse struct {
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Spawn requests a new remote execution session and returns its external ID.
func (c *HTTPClient) Spawn(ctx context.Context, desc TaskDescriptor) (string, error) {
	body, err := json.Marshal(desc)
	if err != nil {
		return "", &models.GatewayError{Op: "spawn", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", &models.GatewayError{Op: "spawn", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &models.GatewayError{Op: "spawn", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &models.GatewayError{Op: "spawn", Err: httpStatusError(resp)}
	}

	var out spawnResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &models.GatewayError{Op: "spawn", Err: err}
	}
	if out.SessionID == "" {
		return "", &models.GatewayError{Op: "spawn", Err: fmt.Errorf("gateway returned empty session id")}
	}
	return out.SessionID, nil
}

// Poll fetches the current state of a remote session.
func (c *HTTPClient) Poll(ctx context.Context, externalID string) (*PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sessions/"+externalID, nil)
	if err != nil {
		return nil, &models.GatewayError{Op: "poll", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.GatewayError{Op: "poll", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.GatewayError{Op: "poll", Err: httpStatusError(resp)}
	}

	var out pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &models.GatewayError{Op: "poll", Err: err}
	}
	return &PollResult{
		Status: MapStatus(out.Status),
		Output: out.Output,
		Error:  out.Error,
	}, nil
}

// Cancel requests cancellation of a remote session. Cancellation is
// best-effort: the remote execution may already be finishing.
func (c *HTTPClient) Cancel(ctx context.Context, externalID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/sessions/"+externalID, nil)
	if err != nil {
		return &models.GatewayError{Op: "cancel", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &models.GatewayError{Op: "cancel", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &models.GatewayError{Op: "cancel", Err: httpStatusError(resp)}
	}
	return nil
}

func httpStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(body) > 0 {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("gateway returned %d", resp.StatusCode)
}

var _ Gateway = (*HTTPClient)(nil)
