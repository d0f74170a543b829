package cluster

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fenwick-labs/chatcluster/internal/store"
)

// Role is a node's current position in the follower/leader state machine.
type Role int

const (
	RoleFollower Role = iota
	RolePromoting
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RolePromoting:
		return "promoting"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

const (
	heartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 1 * time.Second
	heartbeatRetries  = 2
	electionWait      = 10 * time.Second
)

// PromotionHooks lets the process wiring (cmd/server) swap which HTTP
// routers are live when a follower becomes a leader, without the cluster
// package needing to know about net/http or Gin.
type PromotionHooks struct {
	// StopFollowerServers shuts down the follower-facing peer and
	// redirection-stub client servers.
	StopFollowerServers func()
	// StartLeaderServers brings up the leader-facing peer and client
	// servers, now backed by leader.
	StartLeaderServers func(leader *Leader)
}

// Node is the per-process role state machine: it owns whichever of
// Follower or Leader is currently active, and runs the heartbeat/election
// loop when acting as a follower. On repeated heartbeat failure it elects
// a successor by lowest id; a node that loses the election waits and
// reconciles via a check-leader probe against the presumed winner.
type Node struct {
	mu   sync.Mutex
	role Role

	follower *Follower
	leader   *Leader

	selfID         string
	selfPeerAddr   string
	selfClientAddr string

	client *PeerClient
	hooks  PromotionHooks
}

// NewFollowerNode constructs a Node that starts life as a follower of the
// given leader.
func NewFollowerNode(selfID, selfPeerAddr, selfClientAddr string, f *Follower, hooks PromotionHooks) *Node {
	return &Node{
		role:           RoleFollower,
		follower:       f,
		selfID:         selfID,
		selfPeerAddr:   selfPeerAddr,
		selfClientAddr: selfClientAddr,
		client:         NewPeerClient(heartbeatTimeout),
		hooks:          hooks,
	}
}

// NewLeaderNode constructs a Node that starts life already as the leader —
// the first node of a fresh cluster.
func NewLeaderNode(selfID, selfPeerAddr, selfClientAddr string, l *Leader) *Node {
	return &Node{
		role:           RoleLeader,
		leader:         l,
		selfID:         selfID,
		selfPeerAddr:   selfPeerAddr,
		selfClientAddr: selfClientAddr,
		client:         NewPeerClient(heartbeatTimeout),
	}
}

// Role reports the node's current role.
func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// Follower returns the active Follower agent, or nil if this node is the
// leader.
func (n *Node) Follower() *Follower {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.follower
}

// Leader returns the active Leader agent, or nil if this node is a
// follower (or mid-promotion).
func (n *Node) Leader() *Leader {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leader
}

// RunHeartbeatLoop runs until ctx is cancelled. It is a no-op once the node
// has become (or started as) a leader.
func (n *Node) RunHeartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n.Role() != RoleFollower {
				return
			}
			n.tick(ctx)
		}
	}
}

func (n *Node) tick(ctx context.Context) {
	f := n.Follower()
	if f == nil {
		return
	}
	_, leaderAddr := f.LeaderAddress()

	var err error
	for attempt := 0; attempt <= heartbeatRetries; attempt++ {
		hbCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
		err = n.client.HeartBeat(hbCtx, leaderAddr)
		cancel()
		if err == nil {
			return
		}
	}

	log.Printf("cluster: node %s: leader %s unresponsive after %d retries, starting election",
		n.selfID, leaderAddr, heartbeatRetries)
	n.runElection(ctx)
}

// runElection computes the lowest-id candidate among this node and its
// peers, self-promotes if it wins, otherwise waits and reconciles via
// CheckLeader against the presumed winner.
func (n *Node) runElection(ctx context.Context) {
	f := n.Follower()
	if f == nil {
		return
	}

	winner, selfWins := f.Peers().LowestIDCandidate(n.selfPeerAddr)
	if selfWins {
		n.promote(ctx, f)
		return
	}

	log.Printf("cluster: node %s: election favors %s (%s); waiting to reconcile",
		n.selfID, winner.NodeID, winner.PeerAddress)
	select {
	case <-ctx.Done():
		return
	case <-time.After(electionWait):
	}

	checkCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	err := n.client.CheckLeader(checkCtx, winner.PeerAddress)
	cancel()

	if err == nil {
		log.Printf("cluster: node %s: adopting %s as leader", n.selfID, winner.NodeID)
		if err := f.AdoptLeader(ctx, winner.NodeID, winner.PeerAddress); err != nil {
			log.Printf("cluster: node %s: failed adopting new leader %s: %v", n.selfID, winner.NodeID, err)
		}
		return
	}

	log.Printf("cluster: node %s: presumed winner %s did not respond, removing and retrying next tick",
		n.selfID, winner.NodeID)
	f.Peers().Remove(winner.NodeID)
}

// promote turns this node into a leader: stop the follower servers, start
// a Leader agent and its leader servers, and tell every known peer about
// the new leader. It is idempotent: once role has left RoleFollower, a
// concurrent call is a no-op.
func (n *Node) promote(ctx context.Context, f *Follower) {
	n.mu.Lock()
	if n.role != RoleFollower {
		n.mu.Unlock()
		return
	}
	n.role = RolePromoting
	n.mu.Unlock()

	log.Printf("cluster: node %s: promoting to leader", n.selfID)

	if n.hooks.StopFollowerServers != nil {
		n.hooks.StopFollowerServers()
	}

	newLeader := NewLeader(n.selfID, n.selfPeerAddr, n.selfClientAddr, f.Store(), f.Peers())
	newLeader.Start()

	if n.hooks.StartLeaderServers != nil {
		n.hooks.StartLeaderServers(newLeader)
	}

	for _, peer := range f.Peers().Snapshot() {
		peerCtx, cancel := context.WithTimeout(ctx, peerCallTimeout)
		if err := n.client.UpdateLeader(peerCtx, peer.PeerAddress, n.selfPeerAddr, n.selfID); err != nil {
			log.Printf("cluster: node %s: UpdateLeader to %s failed, removing it: %v", n.selfID, peer.NodeID, err)
			f.Peers().Remove(peer.NodeID)
		}
		cancel()
	}

	n.mu.Lock()
	n.leader = newLeader
	n.follower = nil
	n.role = RoleLeader
	n.mu.Unlock()

	log.Printf("cluster: node %s: promotion complete, now leader", n.selfID)
}

// NewBootstrapStore is a convenience used by cmd/server when constructing
// the very first node in a fresh cluster (leader with no peers yet).
func NewBootstrapStore(selfID string) *store.Store {
	return store.New(selfID)
}
