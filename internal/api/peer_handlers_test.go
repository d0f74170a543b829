package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/chatcluster/internal/cluster"
	"github.com/fenwick-labs/chatcluster/internal/model"
	"github.com/fenwick-labs/chatcluster/internal/store"
)

func TestRegisterLeaderPeerRoutesAdmitsFollower(t *testing.T) {
	gin.SetMode(gin.TestMode)

	st := store.New("1")
	_, err := st.CreateUser("alice", []byte("h"))
	require.NoError(t, err)

	leader := cluster.NewLeader("1", "leader-peer", "leader-client", st, cluster.NewPeerSet("1"))
	r := gin.New()
	RegisterLeaderPeerRoutes(r, leader)

	w := doJSON(t, r, http.MethodPost, "/peer/register", map[string]string{
		"follower_id":      "2",
		"follower_address": "follower-peer",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ErrorCode model.StatusCode `json:"error_code"`
		Snapshot  struct {
			Users []struct {
				Username string `json:"username"`
			} `json:"users"`
		} `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.StatusSuccess, resp.ErrorCode)
	require.Len(t, resp.Snapshot.Users, 1)
	assert.Equal(t, "alice", resp.Snapshot.Users[0].Username)

	assert.Equal(t, 1, leader.Peers().Len())
}

func TestRegisterFollowerPeerRoutesAcceptsUpdates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	st := store.New("2")
	follower := cluster.NewFollower("2", "follower-peer", "follower-client", "1", "leader-peer", st, cluster.NewPeerSet("2"))
	r := gin.New()
	RegisterFollowerPeerRoutes(r, follower)

	data, err := json.Marshal(map[string]any{"table": "users", "op": "add", "row": map[string]any{"id": 1, "username": "alice"}})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPost, "/peer/accept-updates", map[string]any{"update_data": data})
	require.Equal(t, http.StatusOK, w.Code)

	got, ok := st.FindUserByName("alice")
	require.True(t, ok)
	assert.EqualValues(t, 1, got.ID)
}
