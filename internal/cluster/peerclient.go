package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PeerClient makes outbound peer RPCs. One short-lived *http.Client call
// per request — no persistent connection pool.
type PeerClient struct {
	httpClient *http.Client
}

// NewPeerClient returns a PeerClient using the given per-call timeout as a
// fallback when the caller's context carries none.
func NewPeerClient(timeout time.Duration) *PeerClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PeerClient{httpClient: &http.Client{Timeout: timeout}}
}

func (c *PeerClient) postJSON(ctx context.Context, addr, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("cluster: marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", addr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("cluster: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cluster: call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cluster: %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cluster: decode %s response: %w", path, err)
	}
	return nil
}

// RegisterFollower registers selfID/selfAddr with the leader at addr.
func (c *PeerClient) RegisterFollower(ctx context.Context, addr, selfID, selfAddr string) (registerResponse, error) {
	var out registerResponse
	req := registerRequest{FollowerID: selfID, FollowerAddress: selfAddr}
	err := c.postJSON(ctx, addr, "/peer/register", req, &out)
	return out, err
}

// HeartBeat probes addr's liveness.
func (c *PeerClient) HeartBeat(ctx context.Context, addr string) error {
	var out okResponse
	return c.postJSON(ctx, addr, "/peer/heartbeat", struct{}{}, &out)
}

// CheckLeader probes addr to confirm it has taken over as leader.
func (c *PeerClient) CheckLeader(ctx context.Context, addr string) error {
	var out okResponse
	return c.postJSON(ctx, addr, "/peer/check-leader", struct{}{}, &out)
}

// AcceptUpdates pushes an encoded mutation event to a follower at addr.
func (c *PeerClient) AcceptUpdates(ctx context.Context, addr string, data []byte) error {
	var out okResponse
	req := acceptUpdatesRequest{UpdateData: data}
	return c.postJSON(ctx, addr, "/peer/accept-updates", req, &out)
}

// UpdateLeader notifies a follower at addr that the cluster has a new
// leader. Fire-and-forget from the caller's perspective: a failure just
// means that peer is presumed dead.
func (c *PeerClient) UpdateLeader(ctx context.Context, addr, newLeaderAddr, newLeaderID string) error {
	var out okResponse
	req := updateLeaderRequest{NewLeaderAddress: newLeaderAddr, NewLeaderID: newLeaderID}
	return c.postJSON(ctx, addr, "/peer/update-leader", req, &out)
}

// UpdateFollowers notifies a follower at addr of a newly-joined peer.
func (c *PeerClient) UpdateFollowers(ctx context.Context, addr string, data []byte) error {
	var out okResponse
	req := updateFollowersRequest{UpdateData: data}
	return c.postJSON(ctx, addr, "/peer/update-followers", req, &out)
}
