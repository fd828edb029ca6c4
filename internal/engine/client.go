// Package engine talks to the external workflow engine: triggering runs
// through its webhook and binding the execution ids it assigns back to the
// relay so progress callbacks can be routed.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobrelay/internal/logging"
)

// Client triggers workflow runs and registers the resulting execution ids
// with the relay.
type Client struct {
	webhookURL string
	relayURL   string
	httpClient *http.Client
	logger     logging.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientLogger attaches a logger.
func WithClientLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// NewClient builds a Client. webhookURL is the engine's trigger endpoint,
// relayURL the relay server base URL.
func NewClient(webhookURL, relayURL string, opts ...ClientOption) *Client {
	c := &Client{
		webhookURL: webhookURL,
		relayURL:   strings.TrimRight(relayURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type triggerResponse struct {
	ExecutionID string `json:"executionId"`
}

// Trigger starts a workflow run with the given payload and returns the
// execution id assigned by the engine. The engine reports progress
// out-of-band, so the returned id is only useful once bound to a workflow
// id via RegisterExecution.
func (c *Client) Trigger(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode trigger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger workflow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drained, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("trigger workflow: status %d: %s", resp.StatusCode, strings.TrimSpace(string(drained)))
	}

	var tr triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	if tr.ExecutionID == "" {
		return "", fmt.Errorf("trigger response missing executionId")
	}

	c.logger.Info("Workflow triggered: executionId=%s", tr.ExecutionID)
	return tr.ExecutionID, nil
}

type registerRequest struct {
	ExecutionID string `json:"executionId"`
	WorkflowID  string `json:"workflowId"`
}

// RegisterExecution binds an engine-assigned execution id to the
// client-chosen workflow id on the relay, so subsequent progress callbacks
// that only carry the execution id reach the right stream.
func (c *Client) RegisterExecution(ctx context.Context, executionID, workflowID string) error {
	body, err := json.Marshal(registerRequest{ExecutionID: executionID, WorkflowID: workflowID})
	if err != nil {
		return fmt.Errorf("encode register request: %w", err)
	}

	url := c.relayURL + "/api/register-execution"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("register execution: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("register execution: status %d", resp.StatusCode)
	}

	c.logger.Info("Execution registered: %s -> %s", executionID, workflowID)
	return nil
}
