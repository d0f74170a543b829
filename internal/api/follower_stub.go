package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

// RegisterNotLeaderStub mounts every /client/* route with a handler that
// always answers NOT_LEADER, so a client library pointed at a follower
// fails fast and tries the next address.
func RegisterNotLeaderStub(r *gin.Engine) {
	notLeader := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"error_code":    model.StatusNotLeader,
			"error_message": model.StatusNotLeader.Message(),
			"session_id":    "",
		})
	}

	g := r.Group("/client")
	for _, route := range []struct {
		method, path string
	}{
		{http.MethodPost, "/create-account"},
		{http.MethodPost, "/login"},
		{http.MethodPost, "/logout"},
		{http.MethodPost, "/delete-account"},
		{http.MethodPost, "/send"},
		{http.MethodGet, "/messages"},
		{http.MethodGet, "/chat"},
		{http.MethodPost, "/delete-messages"},
		{http.MethodGet, "/users"},
		{http.MethodGet, "/unread-counts"},
	} {
		g.Handle(route.method, route.path, notLeader)
	}
}
