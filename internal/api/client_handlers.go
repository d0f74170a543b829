package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fenwick-labs/chatcluster/internal/auth"
	"github.com/fenwick-labs/chatcluster/internal/cluster"
	"github.com/fenwick-labs/chatcluster/internal/model"
	"github.com/fenwick-labs/chatcluster/internal/store"
)

// ClientHandler serves the client-facing RPC surface on a leader: every
// mutating operation commits to the store and then enqueues the
// corresponding event for fan-out to followers.
type ClientHandler struct {
	leader *cluster.Leader
	hasher auth.Hasher
}

// NewClientHandler constructs a ClientHandler backed by leader.
func NewClientHandler(leader *cluster.Leader, hasher auth.Hasher) *ClientHandler {
	if hasher == nil {
		hasher = auth.NewBcryptHasher()
	}
	return &ClientHandler{leader: leader, hasher: hasher}
}

// Register mounts every /client/* route.
func (h *ClientHandler) Register(r *gin.Engine) {
	g := r.Group("/client")
	g.POST("/create-account", h.createAccount)
	g.POST("/login", h.login)
	g.POST("/logout", h.logout)
	g.POST("/delete-account", h.deleteAccount)
	g.POST("/send", h.send)
	g.GET("/messages", h.getMessages)
	g.GET("/chat", h.getChat)
	g.POST("/delete-messages", h.deleteMessages)
	g.GET("/users", h.listUsers)
	g.GET("/unread-counts", h.getUnreadCounts)
}

type createAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *ClientHandler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		writeStatus(c, model.StatusInvalidArguments, gin.H{"session_id": ""})
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		writeStatus(c, model.StatusInvalidArguments, gin.H{"session_id": ""})
		return
	}

	user, err := h.leader.Store().CreateUser(req.Username, hash)
	if err != nil {
		writeStatus(c, model.StatusUserNameExists, gin.H{"session_id": ""})
		return
	}

	h.leader.Enqueue(model.MutationEvent{Table: model.TableUsers, Op: model.OpAdd, Row: user})
	writeStatus(c, model.StatusSuccess, gin.H{"session_id": ""})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *ClientHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeStatus(c, model.StatusInvalidArguments, gin.H{"session_id": ""})
		return
	}

	user, ok := h.leader.Store().FindUserByName(req.Username)
	if !ok {
		writeStatus(c, model.StatusUserDoesntExist, gin.H{"session_id": ""})
		return
	}
	if !h.hasher.Verify(user.PasswordHash, req.Password) {
		writeStatus(c, model.StatusIncorrectPassword, gin.H{"session_id": ""})
		return
	}

	sessionID := uuid.NewString()
	if _, err := h.leader.Store().SetSession(user.ID, sessionID); err != nil {
		writeStatus(c, model.StatusUserDoesntExist, gin.H{"session_id": ""})
		return
	}

	// Sessions are leader-local: no replication event is produced.
	writeStatus(c, model.StatusSuccess, gin.H{"session_id": sessionID})
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *ClientHandler) logout(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeStatus(c, model.StatusInvalidArguments, nil)
		return
	}

	user, ok := h.leader.Store().FindUserBySession(req.SessionID)
	if !ok {
		writeStatus(c, model.StatusUserNotLoggedIn, nil)
		return
	}
	_ = h.leader.Store().ClearSession(user.ID)
	writeStatus(c, model.StatusSuccess, nil)
}

func (h *ClientHandler) deleteAccount(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeStatus(c, model.StatusInvalidArguments, nil)
		return
	}

	user, ok := h.leader.Store().FindUserBySession(req.SessionID)
	if !ok {
		writeStatus(c, model.StatusUserNotLoggedIn, nil)
		return
	}

	deletedUser, tombstones, err := h.leader.Store().DeleteUserCascade(user.ID)
	if err != nil {
		writeStatus(c, model.StatusUserNotLoggedIn, nil)
		return
	}

	h.leader.Enqueue(model.MutationEvent{Table: model.TableUsers, Op: model.OpDelete, Row: deletedUser})
	for _, tomb := range tombstones {
		h.leader.Enqueue(model.MutationEvent{Table: model.TableMessages, Op: model.OpDelete, Row: &model.Message{ID: tomb.OriginalMessageID}})
	}
	writeStatus(c, model.StatusSuccess, nil)
}

type sendRequest struct {
	SessionID string `json:"session_id"`
	To        string `json:"to"`
	Message   string `json:"message"`
}

func (h *ClientHandler) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeStatus(c, model.StatusInvalidArguments, nil)
		return
	}

	sender, ok := h.leader.Store().FindUserBySession(req.SessionID)
	if !ok {
		writeStatus(c, model.StatusUserNotLoggedIn, nil)
		return
	}

	receiver, ok := h.leader.Store().FindUserByName(req.To)
	if !ok {
		writeStatus(c, model.StatusReceiverDoesntExist, nil)
		return
	}

	msg, err := h.leader.Store().InsertMessage(sender.ID, receiver.ID, req.Message)
	if err != nil {
		writeStatus(c, model.StatusReceiverDoesntExist, nil)
		return
	}

	h.leader.Enqueue(model.MutationEvent{Table: model.TableMessages, Op: model.OpAdd, Row: msg})
	writeStatus(c, model.StatusSuccess, nil)
}

func (h *ClientHandler) getMessages(c *gin.Context) {
	sessionID := c.Query("session_id")
	user, ok := h.leader.Store().FindUserBySession(sessionID)
	if !ok {
		writeStatus(c, model.StatusUserNotLoggedIn, gin.H{"messages": []messageWire{}})
		return
	}

	msgs := h.leader.Store().FetchUnreadFor(user.ID)
	if len(msgs) == 0 {
		writeStatus(c, model.StatusNoMessages, gin.H{"messages": []messageWire{}})
		return
	}

	writeStatus(c, model.StatusSuccess, gin.H{"messages": h.toWireMessages(msgs)})
}

func (h *ClientHandler) getChat(c *gin.Context) {
	sessionID := c.Query("session_id")
	caller, ok := h.leader.Store().FindUserBySession(sessionID)
	if !ok {
		writeStatus(c, model.StatusUserNotLoggedIn, gin.H{"messages": []messageWire{}})
		return
	}

	other, ok := h.leader.Store().FindUserByName(c.Query("username"))
	if !ok {
		writeStatus(c, model.StatusNoMessages, gin.H{"messages": []messageWire{}})
		return
	}

	msgs := h.leader.Store().FetchChat(caller.ID, other.ID)
	if len(msgs) == 0 {
		writeStatus(c, model.StatusNoMessages, gin.H{"messages": []messageWire{}})
		return
	}
	writeStatus(c, model.StatusSuccess, gin.H{"messages": h.toWireMessages(msgs)})
}

type deleteMessagesRequest struct {
	SessionID string  `json:"session_id"`
	IDs       []int64 `json:"ids"`
}

func (h *ClientHandler) deleteMessages(c *gin.Context) {
	var req deleteMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeStatus(c, model.StatusInvalidArguments, nil)
		return
	}

	user, ok := h.leader.Store().FindUserBySession(req.SessionID)
	if !ok {
		writeStatus(c, model.StatusUserNotLoggedIn, nil)
		return
	}
	if len(req.IDs) == 0 {
		writeStatus(c, model.StatusInvalidArguments, nil)
		return
	}

	tombstones := h.leader.Store().DeleteMessages(req.IDs, user.ID)
	for _, tomb := range tombstones {
		h.leader.Enqueue(model.MutationEvent{Table: model.TableMessages, Op: model.OpDelete, Row: &model.Message{ID: tomb.OriginalMessageID}})
	}
	writeStatus(c, model.StatusSuccess, nil)
}

func (h *ClientHandler) listUsers(c *gin.Context) {
	wildcard := c.Query("wildcard")
	if wildcard != "" && wildcard != "*" {
		wildcard = wildcard + "*"
	}
	users := h.leader.Store().ListUsers(wildcard)
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *ClientHandler) getUnreadCounts(c *gin.Context) {
	sessionID := c.Query("session_id")
	user, ok := h.leader.Store().FindUserBySession(sessionID)
	if !ok {
		writeStatus(c, model.StatusUserNotLoggedIn, gin.H{"counts": []store.UnreadCount{}})
		return
	}
	counts := h.leader.Store().CountUnreadBySender(user.ID)
	writeStatus(c, model.StatusSuccess, gin.H{"counts": counts})
}

func (h *ClientHandler) toWireMessages(msgs []*model.Message) []messageWire {
	out := make([]messageWire, 0, len(msgs))
	for _, m := range msgs {
		from := ""
		if sender, ok := h.leader.Store().FindUserByID(m.SenderID); ok {
			from = sender.Username
		}
		out = append(out, messageWire{
			From:      from,
			Content:   m.Content,
			MessageID: m.ID,
			TimeStamp: m.TimeStamp.Format(time.RFC3339),
		})
	}
	return out
}
