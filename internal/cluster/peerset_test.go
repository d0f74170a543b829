package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

func TestPeerSetNeverContainsSelf(t *testing.T) {
	p := NewPeerSet("1")
	p.Add(model.ClusterMember{NodeID: "1", PeerAddress: "self:9000"})
	p.Add(model.ClusterMember{NodeID: "2", PeerAddress: "peer:9000"})

	snap := p.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "2", snap[0].NodeID)
}

func TestPeerSetReplaceSkipsSelf(t *testing.T) {
	p := NewPeerSet("1")
	p.Replace([]model.ClusterMember{
		{NodeID: "1", PeerAddress: "self:9000"},
		{NodeID: "2", PeerAddress: "peer-2:9000"},
		{NodeID: "3", PeerAddress: "peer-3:9000"},
	})

	assert.Equal(t, 2, p.Len())
}

func TestLowestIDCandidateSelfWins(t *testing.T) {
	p := NewPeerSet("1")
	p.Add(model.ClusterMember{NodeID: "2", PeerAddress: "peer-2:9000"})
	p.Add(model.ClusterMember{NodeID: "3", PeerAddress: "peer-3:9000"})

	winner, selfWins := p.LowestIDCandidate("self:9000")
	assert.True(t, selfWins)
	assert.Equal(t, "1", winner.NodeID)
}

func TestLowestIDCandidatePeerWins(t *testing.T) {
	p := NewPeerSet("5")
	p.Add(model.ClusterMember{NodeID: "2", PeerAddress: "peer-2:9000"})
	p.Add(model.ClusterMember{NodeID: "3", PeerAddress: "peer-3:9000"})

	winner, selfWins := p.LowestIDCandidate("self:9000")
	assert.False(t, selfWins)
	assert.Equal(t, "2", winner.NodeID)
}

func TestLowestIDCandidateComparesNumerically(t *testing.T) {
	p := NewPeerSet("2")
	p.Add(model.ClusterMember{NodeID: "10", PeerAddress: "peer-10:9000"})

	// Numeric compare: "2" < "10", even though "10" < "2" lexicographically.
	_, selfWins := p.LowestIDCandidate("self:9000")
	assert.True(t, selfWins)
}
