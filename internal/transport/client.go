package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const requestPath = "/api/v1/request"

// Client issues request/response calls over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Ensure Client implements Requester
var _ Requester = (*Client)(nil)

// NewClient creates a new remote client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetToken updates the client's bearer token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// RequestEnvelope is the body of a request call
type RequestEnvelope struct {
	MessageID string `json:"messageId"`
	CommandID string `json:"commandId"`
	Data      any    `json:"data,omitempty"`
}

// ResponseEnvelope is the body of a response
type ResponseEnvelope struct {
	MessageID string          `json:"messageId"`
	CommandID string          `json:"commandId"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Response statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Request performs one call. Every failure is returned as *Error.
func (c *Client) Request(ctx context.Context, method string, params, result any) error {
	env := RequestEnvelope{
		MessageID: uuid.NewString(),
		CommandID: method,
		Data:      params,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return &Error{Method: method, Reason: "failed to marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+requestPath, bytes.NewReader(data))
	if err != nil {
		return &Error{Method: method, Reason: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Method: method, Reason: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Method: method, Reason: "failed to read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return &Error{Method: method, Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var out ResponseEnvelope
	if err := json.Unmarshal(body, &out); err != nil {
		return &Error{Method: method, Reason: "failed to parse response", Err: err}
	}

	if out.MessageID != "" && out.MessageID != env.MessageID {
		return &Error{Method: method, Reason: fmt.Sprintf("response for message %s, expected %s", out.MessageID, env.MessageID)}
	}

	if out.Status != StatusSuccess {
		reason := out.Reason
		if reason == "" {
			reason = "remote reported status " + out.Status
		}
		return &Error{Method: method, Reason: reason}
	}

	if result != nil && len(out.Data) > 0 {
		if err := json.Unmarshal(out.Data, result); err != nil {
			return &Error{Method: method, Reason: "failed to parse response data", Err: err}
		}
	}

	return nil
}
