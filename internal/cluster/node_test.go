package cluster

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fenwick-labs/chatcluster/internal/store"
)

func TestPromoteIsIdempotent(t *testing.T) {
	st := store.New("1")
	peers := NewPeerSet("1")
	follower := NewFollower("1", "peer:9000", "client:8000", "0", "old-leader:9000", st, peers)

	var startCount int
	var mu sync.Mutex
	hooks := PromotionHooks{
		StartLeaderServers: func(l *Leader) {
			mu.Lock()
			startCount++
			mu.Unlock()
		},
	}
	node := NewFollowerNode("1", "peer:9000", "client:8000", follower, hooks)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			node.promote(context.Background(), follower)
		}()
	}
	wg.Wait()

	assert.Equal(t, RoleLeader, node.Role())
	assert.Equal(t, 1, startCount)
}

func TestNodeStartsAsLeaderWhenBootstrapped(t *testing.T) {
	st := store.New("1")
	peers := NewPeerSet("1")
	leader := NewLeader("1", "peer:9000", "client:8000", st, peers)
	node := NewLeaderNode("1", "peer:9000", "client:8000", leader)

	assert.Equal(t, RoleLeader, node.Role())
	assert.Same(t, leader, node.Leader())
}
