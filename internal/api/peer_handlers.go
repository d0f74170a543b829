package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fenwick-labs/chatcluster/internal/cluster"
	"github.com/fenwick-labs/chatcluster/internal/model"
)

// registerPeerRequest is the body of /peer/register; the leader's heartbeat
// and check-leader RPCs take no body.
type registerPeerRequest struct {
	FollowerID      string `json:"follower_id"`
	FollowerAddress string `json:"follower_address"`
}

// RegisterLeaderPeerRoutes mounts /peer/register, /peer/heartbeat, and
// /peer/check-leader, backed by leader.
func RegisterLeaderPeerRoutes(r *gin.Engine, leader *cluster.Leader) {
	g := r.Group("/peer")
	g.POST("/register", func(c *gin.Context) {
		var req registerPeerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeStatus(c, model.StatusInvalidArguments, nil)
			return
		}
		snap, others, err := leader.RegisterFollower(c.Request.Context(), req.FollowerID, req.FollowerAddress)
		if err != nil {
			writeStatus(c, model.StatusInvalidArguments, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"error_code":      model.StatusSuccess,
			"snapshot":        snap,
			"other_followers": others,
		})
	})
	g.POST("/heartbeat", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"error_code": leader.HeartBeat()})
	})
	g.POST("/check-leader", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"error_code": leader.CheckLeader()})
	})
}

// acceptUpdatesRequest/updateLeaderRequest/updateFollowersRequest are the
// bodies of the follower-side peer RPCs.
type acceptUpdatesRequest struct {
	UpdateData []byte `json:"update_data"`
}

type updateLeaderRequest struct {
	NewLeaderAddress string `json:"new_leader_address"`
	NewLeaderID      string `json:"new_leader_id"`
}

type updateFollowersRequest struct {
	UpdateData []byte `json:"update_data"`
}

// RegisterFollowerPeerRoutes mounts /peer/accept-updates, /peer/update-leader,
// and /peer/update-followers, backed by follower.
func RegisterFollowerPeerRoutes(r *gin.Engine, follower *cluster.Follower) {
	g := r.Group("/peer")
	g.POST("/accept-updates", func(c *gin.Context) {
		var req acceptUpdatesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeStatus(c, model.StatusInvalidArguments, nil)
			return
		}
		code := follower.AcceptUpdates(req.UpdateData)
		c.JSON(http.StatusOK, gin.H{"error_code": code})
	})
	g.POST("/update-leader", func(c *gin.Context) {
		var req updateLeaderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeStatus(c, model.StatusInvalidArguments, nil)
			return
		}
		if err := follower.AdoptLeader(c.Request.Context(), req.NewLeaderID, req.NewLeaderAddress); err != nil {
			writeStatus(c, model.StatusInvalidArguments, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"error_code": model.StatusSuccess})
	})
	g.POST("/update-followers", func(c *gin.Context) {
		var req updateFollowersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeStatus(c, model.StatusInvalidArguments, nil)
			return
		}
		code := follower.UpdateFollowers(req.UpdateData)
		c.JSON(http.StatusOK, gin.H{"error_code": code})
	})
}
