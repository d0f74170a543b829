// Package client is the SDK external tools (CLI, future GUI) use to talk
// to the cluster: it hides address rotation and session re-validation
// behind a handful of plain Go methods. On a transient failure or a
// NOT_LEADER response it rotates to the next configured address; on a
// rejected session it re-runs Login with the credentials last used and
// retries the call once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

// ErrNotLoggedIn is returned by any session-bound operation attempted
// before Login (CreateAccount and ListUsers need no session).
var ErrNotLoggedIn = errors.New("client: not logged in")

// Message is the SDK-facing shape of a chat message.
type Message struct {
	From      string    `json:"from"`
	Content   string    `json:"content"`
	MessageID int64     `json:"message_id"`
	TimeStamp time.Time `json:"time_stamp"`
}

// UserStatus is one row of ListUsers' result.
type UserStatus struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// UnreadCount is one row of GetUnreadCounts' result.
type UnreadCount struct {
	From  string `json:"from"`
	Count int    `json:"count"`
}

// APIError wraps a non-success {error_code, error_message} response.
type APIError struct {
	Code    model.StatusCode
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("server error %d: %s", e.Code, e.Message) }

// Client is a failover-aware SDK instance. Not safe for concurrent use by
// multiple goroutines without external synchronization.
type Client struct {
	addresses []string
	current   int

	httpClient *http.Client

	sessionID string
	username  string
	password  string
}

// New returns a Client that will try each address in order, wrapping
// around, on any transient failure.
func New(addresses []string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		addresses:  addresses,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) rotate() {
	c.current = (c.current + 1) % len(c.addresses)
}

func (c *Client) addr() string {
	return c.addresses[c.current]
}

type wireStatus struct {
	ErrorCode    model.StatusCode `json:"error_code"`
	ErrorMessage string           `json:"error_message"`
}

// call POSTs or GETs body against path, rotating addresses on transport
// failure or a NOT_LEADER response, and decodes the JSON body into out.
// Returns the decoded status for the caller to branch on.
func (c *Client) call(ctx context.Context, method, path string, body any, out any) (wireStatus, error) {
	maxAttempts := len(c.addresses)
	if maxAttempts == 0 {
		return wireStatus{}, errors.New("client: no server addresses configured")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, err := c.doOnce(ctx, method, path, body, out)
		if err == nil && status.ErrorCode != model.StatusNotLeader {
			return status, nil
		}
		if err == nil && status.ErrorCode == model.StatusNotLeader {
			lastErr = &APIError{Code: status.ErrorCode, Message: status.ErrorMessage}
		} else {
			lastErr = err
		}
		c.rotate()
	}
	return wireStatus{}, fmt.Errorf("client: exhausted %d addresses: %w", maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, out any) (wireStatus, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return wireStatus{}, fmt.Errorf("client: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	url := fmt.Sprintf("http://%s%s", c.addr(), path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return wireStatus{}, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wireStatus{}, fmt.Errorf("client: request to %s: %w", c.addr(), err)
	}
	defer resp.Body.Close()

	raw, err := decodeBoth(resp.Body, out)
	if err != nil {
		return wireStatus{}, fmt.Errorf("client: decode response from %s: %w", c.addr(), err)
	}
	return raw, nil
}

// decodeBoth decodes the status envelope fields into a wireStatus and also
// unmarshals the full body into out (if non-nil), since the status fields
// and the operation-specific fields share one JSON object.
func decodeBoth(body io.Reader, out any) (wireStatus, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return wireStatus{}, err
	}
	var status wireStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return wireStatus{}, err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return wireStatus{}, err
		}
	}
	return status, nil
}
