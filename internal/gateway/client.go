package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the platform API over HTTP. The endpoint contract is
// narrow: POST /backup, /apply, /verify and /restore with JSON bodies.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	budget  RetryBudget
}

// NewClient builds an HTTP gateway. timeout bounds each individual request;
// budget bounds retries per call site.
func NewClient(baseURL, token string, timeout time.Duration, budget RetryBudget) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		budget:  budget,
	}
}

type backupRequest struct {
	Target string `json:"target"`
}

type backupResponse struct {
	BackupRef string `json:"backup_ref"`
}

type applyRequest struct {
	ActionID string            `json:"action_id"`
	Target   string            `json:"target"`
	Params   map[string]string `json:"parameters,omitempty"`
}

type verifyRequest struct {
	Target string   `json:"target"`
	Tests  []string `json:"tests"`
}

type verifyResponse struct {
	Results []CheckResult `json:"results"`
}

type restoreRequest struct {
	BackupRef string `json:"backup_ref"`
}

// Backup asks the platform for a snapshot of the target.
func (c *Client) Backup(ctx context.Context, target string) (string, error) {
	var out backupResponse
	err := withRetry(ctx, c.budget, func() error {
		return c.post(ctx, "/backup", backupRequest{Target: target}, &out)
	})
	if err != nil {
		return "", err
	}
	if out.BackupRef == "" {
		return "", &TransportError{Op: "backup", Err: errors.New("platform returned empty backup_ref")}
	}
	return out.BackupRef, nil
}

// Apply performs the named action.
func (c *Client) Apply(ctx context.Context, actionID, target string, params map[string]string) error {
	return withRetry(ctx, c.budget, func() error {
		return c.post(ctx, "/apply", applyRequest{ActionID: actionID, Target: target, Params: params}, nil)
	})
}

// Verify runs post-condition checks.
func (c *Client) Verify(ctx context.Context, target string, tests []string) ([]CheckResult, error) {
	var out verifyResponse
	err := withRetry(ctx, c.budget, func() error {
		return c.post(ctx, "/verify", verifyRequest{Target: target, Tests: tests}, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Restore reverts to a snapshot.
func (c *Client) Restore(ctx context.Context, backupRef string) error {
	return withRetry(ctx, c.budget, func() error {
		return c.post(ctx, "/restore", restoreRequest{BackupRef: backupRef}, nil)
	})
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", path, ErrTimeout)
		}
		return &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransportError{Op: path, Err: fmt.Errorf("status %d: %s", resp.StatusCode, snippet)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
