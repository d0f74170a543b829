// Package cluster implements the replication and failover core: the peer
// set every node tracks, the leader and follower agents, and the
// heartbeat-driven election between them.
package cluster

import (
	"sort"
	"strconv"
	"sync"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

// PeerSet is the thread-safe collection of known cluster members, keyed by
// node id. The local node never appears in its own set (P5).
type PeerSet struct {
	mu      sync.RWMutex
	selfID  string
	members map[string]model.ClusterMember
}

// NewPeerSet returns an empty PeerSet for a node identified by selfID.
func NewPeerSet(selfID string) *PeerSet {
	return &PeerSet{selfID: selfID, members: make(map[string]model.ClusterMember)}
}

// Add inserts or replaces a peer. A peer matching selfID is ignored.
func (p *PeerSet) Add(m model.ClusterMember) {
	if m.NodeID == p.selfID {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[m.NodeID] = m
}

// Remove drops a peer by id.
func (p *PeerSet) Remove(nodeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members, nodeID)
}

// Snapshot returns a stable-ordered copy of the current peer list.
func (p *PeerSet) Snapshot() []model.ClusterMember {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]model.ClusterMember, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Replace wholesale-swaps the peer set's contents, skipping selfID.
func (p *PeerSet) Replace(members []model.ClusterMember) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = make(map[string]model.ClusterMember, len(members))
	for _, m := range members {
		if m.NodeID == p.selfID {
			continue
		}
		p.members[m.NodeID] = m
	}
}

// Len reports the number of known peers (excluding self).
func (p *PeerSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

// LowestIDCandidate returns the member with the numerically smallest node
// id among the peer set and self, comparing ids as integers (falling back
// to a string compare for non-numeric ids so operator-supplied names never
// panic the election). Reports whether self is the winner.
func (p *PeerSet) LowestIDCandidate(selfAddress string) (winner model.ClusterMember, selfWins bool) {
	p.mu.RLock()
	candidates := make([]model.ClusterMember, 0, len(p.members)+1)
	for _, m := range p.members {
		candidates = append(candidates, m)
	}
	p.mu.RUnlock()

	candidates = append(candidates, model.ClusterMember{NodeID: p.selfID, PeerAddress: selfAddress})

	sort.Slice(candidates, func(i, j int) bool {
		return idLess(candidates[i].NodeID, candidates[j].NodeID)
	})

	winner = candidates[0]
	return winner, winner.NodeID == p.selfID
}

func idLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
