package client

import (
	"context"
	"net/http"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

// CreateAccount registers a new user.
func (c *Client) CreateAccount(ctx context.Context, username, password string) error {
	req := map[string]string{"username": username, "password": password}
	status, err := c.call(ctx, http.MethodPost, "/client/create-account", req, nil)
	if err != nil {
		return err
	}
	return asError(status)
}

// Login authenticates and stores the session + credentials for this
// Client, so a later failover can transparently relogin.
func (c *Client) Login(ctx context.Context, username, password string) error {
	req := map[string]string{"username": username, "password": password}
	var out struct {
		SessionID string `json:"session_id"`
	}
	status, err := c.call(ctx, http.MethodPost, "/client/login", req, &out)
	if err != nil {
		return err
	}
	if err := asError(status); err != nil {
		return err
	}
	c.sessionID = out.SessionID
	c.username = username
	c.password = password
	return nil
}

// Logout invalidates the current session.
func (c *Client) Logout(ctx context.Context) error {
	if c.sessionID == "" {
		return ErrNotLoggedIn
	}
	status, err := c.withRelogin(ctx, func() (wireStatus, error) {
		req := map[string]string{"session_id": c.sessionID}
		return c.call(ctx, http.MethodPost, "/client/logout", req, nil)
	})
	if err != nil {
		return err
	}
	c.sessionID = ""
	return asError(status)
}

// DeleteAccount deletes the logged-in user's own account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	if c.sessionID == "" {
		return ErrNotLoggedIn
	}
	status, err := c.withRelogin(ctx, func() (wireStatus, error) {
		req := map[string]string{"session_id": c.sessionID}
		return c.call(ctx, http.MethodPost, "/client/delete-account", req, nil)
	})
	if err != nil {
		return err
	}
	c.sessionID = ""
	return asError(status)
}

// Send delivers a message to another user.
func (c *Client) Send(ctx context.Context, to, message string) error {
	if c.sessionID == "" {
		return ErrNotLoggedIn
	}
	status, err := c.withRelogin(ctx, func() (wireStatus, error) {
		req := map[string]string{"session_id": c.sessionID, "to": to, "message": message}
		return c.call(ctx, http.MethodPost, "/client/send", req, nil)
	})
	if err != nil {
		return err
	}
	return asError(status)
}

// ListUsers returns every user whose username matches wildcard (empty
// means everyone).
func (c *Client) ListUsers(ctx context.Context, wildcard string) ([]UserStatus, error) {
	var out struct {
		Users []UserStatus `json:"users"`
	}
	path := "/client/users"
	if wildcard != "" {
		path += "?wildcard=" + wildcard
	}
	if _, err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// GetMessages fetches and marks-received every pending message for the
// logged-in user.
func (c *Client) GetMessages(ctx context.Context) ([]Message, error) {
	if c.sessionID == "" {
		return nil, ErrNotLoggedIn
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	status, err := c.withRelogin(ctx, func() (wireStatus, error) {
		return c.call(ctx, http.MethodGet, "/client/messages?session_id="+c.sessionID, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	if status.ErrorCode == model.StatusNoMessages {
		return nil, nil
	}
	if err := asError(status); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// GetChat fetches the full message history between the logged-in user and
// other.
func (c *Client) GetChat(ctx context.Context, other string) ([]Message, error) {
	if c.sessionID == "" {
		return nil, ErrNotLoggedIn
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	status, err := c.withRelogin(ctx, func() (wireStatus, error) {
		return c.call(ctx, http.MethodGet, "/client/chat?session_id="+c.sessionID+"&username="+other, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	if status.ErrorCode == model.StatusNoMessages {
		return nil, nil
	}
	if err := asError(status); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// GetUnreadCounts returns unread message counts grouped by sender.
func (c *Client) GetUnreadCounts(ctx context.Context) ([]UnreadCount, error) {
	if c.sessionID == "" {
		return nil, ErrNotLoggedIn
	}
	var out struct {
		Counts []UnreadCount `json:"counts"`
	}
	status, err := c.withRelogin(ctx, func() (wireStatus, error) {
		return c.call(ctx, http.MethodGet, "/client/unread-counts?session_id="+c.sessionID, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	if err := asError(status); err != nil {
		return nil, err
	}
	return out.Counts, nil
}

// DeleteMessages removes the given message ids.
func (c *Client) DeleteMessages(ctx context.Context, ids []int64) error {
	if c.sessionID == "" {
		return ErrNotLoggedIn
	}
	status, err := c.withRelogin(ctx, func() (wireStatus, error) {
		req := map[string]any{"session_id": c.sessionID, "ids": ids}
		return c.call(ctx, http.MethodPost, "/client/delete-messages", req, nil)
	})
	if err != nil {
		return err
	}
	return asError(status)
}

// withRelogin runs op once, and if it reports USER_NOT_LOGGED_IN after a
// failover and the Client has remembered credentials, relogins and retries
// once.
func (c *Client) withRelogin(ctx context.Context, op func() (wireStatus, error)) (wireStatus, error) {
	status, err := op()
	if err != nil {
		return status, err
	}
	if status.ErrorCode != model.StatusUserNotLoggedIn || c.username == "" {
		return status, nil
	}
	if loginErr := c.Login(ctx, c.username, c.password); loginErr != nil {
		return status, nil
	}
	return op()
}

func asError(status wireStatus) error {
	if status.ErrorCode == model.StatusSuccess {
		return nil
	}
	return &APIError{Code: status.ErrorCode, Message: status.ErrorMessage}
}
