package cluster

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/chatcluster/internal/model"
	"github.com/fenwick-labs/chatcluster/internal/store"
)

// newTestLeaderServer starts a real HTTP server fronting the leader's peer
// routes (register/heartbeat/check-leader), so Follower.Register and the
// fan-out loop exercise actual wire round-trips rather than in-process
// calls.
func newTestLeaderServer(t *testing.T, leader *Leader) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	g := r.Group("/peer")
	g.POST("/register", func(c *gin.Context) {
		var req registerRequest
		require.NoError(t, c.ShouldBindJSON(&req))
		snap, others, err := leader.RegisterFollower(c.Request.Context(), req.FollowerID, req.FollowerAddress)
		require.NoError(t, err)
		c.JSON(200, registerResponse{
			ErrorCode: model.StatusSuccess,
			Snapshot: snapshotWire{
				Users:           snap.Users,
				Messages:        snap.Messages,
				DeletedMessages: snap.DeletedMessages,
			},
			OtherFollowers: others,
		})
	})
	g.POST("/heartbeat", func(c *gin.Context) {
		c.JSON(200, okResponse{ErrorCode: leader.HeartBeat()})
	})
	g.POST("/check-leader", func(c *gin.Context) {
		c.JSON(200, okResponse{ErrorCode: leader.CheckLeader()})
	})

	return httptest.NewServer(r)
}

func newTestFollowerServer(t *testing.T, follower *Follower) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	g := r.Group("/peer")
	g.POST("/accept-updates", func(c *gin.Context) {
		var req acceptUpdatesRequest
		require.NoError(t, c.ShouldBindJSON(&req))
		c.JSON(200, okResponse{ErrorCode: follower.AcceptUpdates(req.UpdateData)})
	})
	g.POST("/update-followers", func(c *gin.Context) {
		var req updateFollowersRequest
		require.NoError(t, c.ShouldBindJSON(&req))
		c.JSON(200, okResponse{ErrorCode: follower.UpdateFollowers(req.UpdateData)})
	})

	return httptest.NewServer(r)
}

// stripScheme turns "http://127.0.0.1:port" into "127.0.0.1:port", the
// host:port form PeerClient expects.
func stripScheme(url string) string {
	const prefix = "http://"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}

func TestFollowerBootstrapsFromLeaderSnapshot(t *testing.T) {
	leaderStore := store.New("1")
	alice, err := leaderStore.CreateUser("alice", []byte("h"))
	require.NoError(t, err)

	leaderPeers := NewPeerSet("1")
	leader := NewLeader("1", "leader-peer-addr", "leader-client-addr", leaderStore, leaderPeers)
	srv := newTestLeaderServer(t, leader)
	defer srv.Close()

	followerStore := store.New("2")
	followerPeers := NewPeerSet("2")
	follower := NewFollower("2", "follower-peer-addr", "follower-client-addr", "1", stripScheme(srv.URL), followerStore, followerPeers)

	require.NoError(t, follower.Register(context.Background()))

	got, ok := followerStore.FindUserByName("alice")
	require.True(t, ok)
	assert.Equal(t, alice.ID, got.ID)
}

func TestFanOutDeliversEventToFollower(t *testing.T) {
	leaderStore := store.New("1")
	leaderPeers := NewPeerSet("1")
	leader := NewLeader("1", "leader-peer-addr", "leader-client-addr", leaderStore, leaderPeers)

	followerStore := store.New("2")
	followerPeers := NewPeerSet("2")
	follower := NewFollower("2", "", "", "1", "", followerStore, followerPeers)
	followerSrv := newTestFollowerServer(t, follower)
	defer followerSrv.Close()

	leaderPeers.Add(model.ClusterMember{NodeID: "2", PeerAddress: stripScheme(followerSrv.URL)})

	leader.Start()
	defer leader.Stop()

	user, err := leaderStore.CreateUser("alice", []byte("h"))
	require.NoError(t, err)
	leader.Enqueue(model.MutationEvent{Table: model.TableUsers, Op: model.OpAdd, Row: user})

	require.Eventually(t, func() bool {
		_, ok := followerStore.FindUserByName("alice")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
