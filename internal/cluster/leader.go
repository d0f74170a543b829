package cluster

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/fenwick-labs/chatcluster/internal/model"
	"github.com/fenwick-labs/chatcluster/internal/replication"
	"github.com/fenwick-labs/chatcluster/internal/store"
)

// fanOutQueueCapacity bounds how many undelivered events a leader holds
// before dropping the oldest — see replication.Queue's drop-oldest policy.
const fanOutQueueCapacity = 1024

// peerCallTimeout is the default context budget for a single peer RPC.
const peerCallTimeout = 5 * time.Second

// Leader owns the fan-out queue and the peer set, and serves the peer RPCs
// that admit new followers. Event delivery to followers is best-effort and
// at-most-once: no acks are collected and no retries happen.
type Leader struct {
	selfID         string
	selfPeerAddr   string
	selfClientAddr string

	store  *store.Store
	peers  *PeerSet
	client *PeerClient

	queue    *replication.Queue
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLeader constructs a Leader agent. The store is reused as-is whether
// this process launched as a leader or was just promoted from follower.
func NewLeader(selfID, selfPeerAddr, selfClientAddr string, st *store.Store, peers *PeerSet) *Leader {
	return &Leader{
		selfID:         selfID,
		selfPeerAddr:   selfPeerAddr,
		selfClientAddr: selfClientAddr,
		store:          st,
		peers:          peers,
		client:         NewPeerClient(peerCallTimeout),
		queue:          replication.NewQueue(fanOutQueueCapacity),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start launches the fan-out worker goroutine.
func (l *Leader) Start() {
	go l.fanOutLoop()
}

// Stop halts the fan-out worker and waits for it to exit.
func (l *Leader) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
}

// Enqueue is called by the client RPC surface after a successful store
// commit, to schedule the corresponding event for fan-out.
func (l *Leader) Enqueue(ev model.MutationEvent) {
	l.queue.Push(ev)
}

// Store returns the leader's backing store, for the client RPC surface.
func (l *Leader) Store() *store.Store { return l.store }

// SelfID returns this node's id.
func (l *Leader) SelfID() string { return l.selfID }

// Peers returns the leader's peer set.
func (l *Leader) Peers() *PeerSet { return l.peers }

// fanOutLoop dequeues one event at a time and pushes it to every known
// peer. The queue blocks the goroutine between events (no busy-spin).
func (l *Leader) fanOutLoop() {
	defer close(l.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-l.stopCh
		cancel()
	}()

	for {
		ev, ok := l.queue.Pop(ctx)
		if !ok {
			return
		}
		data, err := replication.Encode(ev)
		if err != nil {
			log.Printf("cluster: leader: failed to encode event for %s.%s: %v", ev.Table, ev.Op, err)
			continue
		}
		for _, peer := range l.peers.Snapshot() {
			l.deliverOne(peer, data)
		}
	}
}

func (l *Leader) deliverOne(peer model.ClusterMember, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), peerCallTimeout)
	defer cancel()
	if err := l.client.AcceptUpdates(ctx, peer.PeerAddress, data); err != nil {
		log.Printf("cluster: leader: AcceptUpdates to %s (%s) failed: %v", peer.NodeID, peer.PeerAddress, err)
	}
}

// RegisterFollower handles an inbound follower registration: admits the
// follower to the peer set, snapshots the store, and tells every other
// peer about the new member. The returned peer list excludes the
// registrant itself.
func (l *Leader) RegisterFollower(ctx context.Context, followerID, followerAddr string) (store.Snapshot, []model.ClusterMember, error) {
	newMember := model.ClusterMember{NodeID: followerID, PeerAddress: followerAddr}
	others := make([]model.ClusterMember, 0)
	for _, peer := range l.peers.Snapshot() {
		if peer.NodeID != followerID {
			others = append(others, peer)
		}
	}
	l.peers.Add(newMember)

	snap := l.store.SnapshotAll()

	for _, peer := range others {
		peerCtx, cancel := context.WithTimeout(ctx, peerCallTimeout)
		data, err := encodePeerPair(newMember)
		if err == nil {
			if err := l.client.UpdateFollowers(peerCtx, peer.PeerAddress, data); err != nil {
				log.Printf("cluster: leader: UpdateFollowers to %s failed: %v", peer.NodeID, err)
			}
		}
		cancel()
	}

	log.Printf("cluster: leader: registered follower %s at %s", followerID, followerAddr)
	return snap, others, nil
}

// HeartBeat answers a liveness probe.
func (l *Leader) HeartBeat() model.StatusCode { return model.StatusSuccess }

// CheckLeader answers a check-leader probe, used by a follower reconciling
// a pending election winner.
func (l *Leader) CheckLeader() model.StatusCode { return model.StatusSuccess }

func encodePeerPair(m model.ClusterMember) ([]byte, error) {
	w := clusterMemberWire{PeerID: m.NodeID, PeerAddress: m.PeerAddress}
	return json.Marshal(w)
}
