package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/fenwick-labs/chatcluster/internal/model"
	"github.com/fenwick-labs/chatcluster/internal/replication"
	"github.com/fenwick-labs/chatcluster/internal/store"
)

// Follower bootstraps from the leader's snapshot, applies incoming events
// in order to keep its local store in sync, and serves the peer RPCs a
// leader or a sibling follower addresses to it.
type Follower struct {
	mu sync.RWMutex

	selfID         string
	selfPeerAddr   string
	selfClientAddr string

	leaderID   string
	leaderAddr string

	store  *store.Store
	peers  *PeerSet
	client *PeerClient
}

// NewFollower constructs a Follower agent pointed at the given leader.
func NewFollower(selfID, selfPeerAddr, selfClientAddr, leaderID, leaderAddr string, st *store.Store, peers *PeerSet) *Follower {
	return &Follower{
		selfID:         selfID,
		selfPeerAddr:   selfPeerAddr,
		selfClientAddr: selfClientAddr,
		leaderID:       leaderID,
		leaderAddr:     leaderAddr,
		store:          st,
		peers:          peers,
		client:         NewPeerClient(peerCallTimeout),
	}
}

// Store returns the follower's backing store.
func (f *Follower) Store() *store.Store { return f.store }

// SelfID returns this node's id.
func (f *Follower) SelfID() string { return f.selfID }

// Peers returns the follower's peer set.
func (f *Follower) Peers() *PeerSet { return f.peers }

// LeaderAddress returns the address the follower believes is current.
func (f *Follower) LeaderAddress() (id, addr string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.leaderID, f.leaderAddr
}

// Register performs the outbound RegisterFollower call against the
// configured leader, then loads the returned snapshot and peer list.
// Called at startup and after every new-leader adoption.
func (f *Follower) Register(ctx context.Context) error {
	f.mu.RLock()
	leaderAddr := f.leaderAddr
	f.mu.RUnlock()

	resp, err := f.client.RegisterFollower(ctx, leaderAddr, f.selfID, f.selfPeerAddr)
	if err != nil {
		return fmt.Errorf("cluster: follower: register with %s: %w", leaderAddr, err)
	}
	if resp.ErrorCode != model.StatusSuccess {
		return fmt.Errorf("cluster: follower: register rejected: code %d", resp.ErrorCode)
	}

	f.store.WipeAndRecreate()
	f.store.LoadSnapshot(store.Snapshot{
		Users:           resp.Snapshot.Users,
		Messages:        resp.Snapshot.Messages,
		DeletedMessages: resp.Snapshot.DeletedMessages,
	})
	f.peers.Replace(resp.OtherFollowers)

	log.Printf("cluster: follower: registered with leader %s, loaded %d users / %d messages",
		leaderAddr, len(resp.Snapshot.Users), len(resp.Snapshot.Messages))
	return nil
}

// AcceptUpdates decodes and applies one replicated mutation event.
// Decode or apply failures are logged and dropped — the event is never
// retried (at-most-once); the leader always sees success so a single
// poisoned event never blocks the fan-out loop.
func (f *Follower) AcceptUpdates(data []byte) model.StatusCode {
	ev, err := replication.Decode(data)
	if err != nil {
		log.Printf("cluster: follower: decode event: %v", err)
		return model.StatusSuccess
	}
	if err := f.store.ApplyEvent(ev); err != nil {
		log.Printf("cluster: follower: apply event (%s.%s): %v", ev.Table, ev.Op, err)
	}
	return model.StatusSuccess
}

// UpdateFollowers records a newly-joined peer the leader told us about.
func (f *Follower) UpdateFollowers(data []byte) model.StatusCode {
	var w clusterMemberWire
	if err := json.Unmarshal(data, &w); err != nil {
		log.Printf("cluster: follower: decode update-followers payload: %v", err)
		return model.StatusSuccess
	}
	f.peers.Add(model.ClusterMember{NodeID: w.PeerID, PeerAddress: w.PeerAddress})
	return model.StatusSuccess
}

// AdoptLeader switches this follower to a new leader: wipes the local
// store, points at the new address, drops the old leader from the peer
// set, and re-registers. Safe to call repeatedly.
func (f *Follower) AdoptLeader(ctx context.Context, newLeaderID, newLeaderAddr string) error {
	f.mu.Lock()
	oldLeaderID := f.leaderID
	f.leaderID = newLeaderID
	f.leaderAddr = newLeaderAddr
	f.mu.Unlock()

	if oldLeaderID != "" && oldLeaderID != newLeaderID {
		f.peers.Remove(oldLeaderID)
	}

	f.store.WipeAndRecreate()
	return f.Register(ctx)
}
