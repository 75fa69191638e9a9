package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/teslashibe/go-embody/internal/httpc"
)

// dispatchTimeout bounds a single daemon call. The daemon sits on the
// local link, so anything slower than this is already a failure.
const dispatchTimeout = 2 * time.Second

// Client talks to the control daemon over its HTTP API.
type Client struct {
	BaseURL string

	hc *http.Client
}

// NewClient creates a daemon client for a base URL such as
// "http://192.168.68.80:8000".
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		hc:      httpc.NewClient(dispatchTimeout),
	}
}

// SetTarget posts a pose target to the daemon. Empty targets are
// dropped without a network call.
func (c *Client) SetTarget(ctx context.Context, t Target) error {
	if t.IsEmpty() {
		return nil
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal move payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/api/move/set_target", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: daemon returned %s", ErrDispatch, resp.Status)
	}
	return nil
}

// Status returns the daemon state string ("running" when healthy).
func (c *Client) Status(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/api/daemon/status", nil)
	if err != nil {
		return "", fmt.Errorf("daemon status request failed: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("daemon status request failed: %w", err)
	}
	defer resp.Body.Close()

	var status struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("failed to decode daemon status: %w", err)
	}
	return status.State, nil
}

// WaitRunning polls Status until the daemon reports running, the
// context ends, or attempts are exhausted.
func (c *Client) WaitRunning(ctx context.Context, attempts int, interval time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		state, err := c.Status(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if state == StateRunning {
			return nil
		}
		lastErr = fmt.Errorf("%w: state %q", ErrNotRunning, state)
	}
	return lastErr
}
