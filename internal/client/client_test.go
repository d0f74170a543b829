package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stripScheme(url string) string {
	const prefix = "http://"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}

func TestCreateAccountFailsOverPastNotLeaderFollower(t *testing.T) {
	follower := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error_code": 18, "error_message": "NOT LEADER", "session_id": ""})
	}))
	defer follower.Close()

	var sawCreate bool
	leader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawCreate = true
		json.NewEncoder(w).Encode(map[string]any{"error_code": 0, "error_message": "", "session_id": ""})
	}))
	defer leader.Close()

	c := New([]string{stripScheme(follower.URL), stripScheme(leader.URL)}, time.Second)
	err := c.CreateAccount(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.True(t, sawCreate)
}

func TestLoginReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error_code": 9, "error_message": "USER DOESN'T EXIST", "session_id": ""})
	}))
	defer srv.Close()

	c := New([]string{stripScheme(srv.URL)}, time.Second)
	err := c.Login(context.Background(), "ghost", "pw")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.EqualValues(t, 9, apiErr.Code)
}

func TestSendRequiresPriorLogin(t *testing.T) {
	c := New([]string{"unused:0"}, time.Second)
	err := c.Send(context.Background(), "bob", "hi")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}
