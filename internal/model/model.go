// Package model defines the row types the store persists and replicates.
//
// These mirror the three tables described by the data model: users,
// messages, and their tombstones. Every field that crosses the wire in a
// replication event or a client response is exported and JSON-tagged so the
// codec and the HTTP handlers can serialize it without a translation layer.
package model

import "time"

// User is a single account row.
//
// Invariant: SessionID is non-empty iff LoggedIn is true. The store is the
// only writer that may break this invariant momentarily (between setting the
// two fields); callers always see it held.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
	LoggedIn     bool   `json:"logged_in"`
	SessionID    string `json:"session_id"`
	Version      uint64 `json:"version"`
}

// Message is a point-to-point chat message.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	IsReceived bool      `json:"is_received"`
	TimeStamp  time.Time `json:"time_stamp"`
	Version    uint64    `json:"version"`
}

// DeletedMessage is a tombstone written on explicit deletion or cascading
// account deletion. Never modified after insert.
type DeletedMessage struct {
	ID                int64     `json:"id"`
	SenderID          int64     `json:"sender_id"`
	ReceiverID        int64     `json:"receiver_id"`
	Content           string    `json:"content"`
	IsReceived        bool      `json:"is_received"`
	TimeStamp         time.Time `json:"time_stamp"`
	OriginalMessageID int64     `json:"original_message_id"`
	Version           uint64    `json:"version"`
}

// ClusterMember identifies a cluster peer by id and the address it exposes
// its peer RPCs on.
type ClusterMember struct {
	NodeID      string `json:"node_id"`
	PeerAddress string `json:"peer_address"`
}

// Table names used as the discriminant in a MutationEvent and as keys into
// the snapshot payload.
const (
	TableUsers           = "users"
	TableMessages        = "messages"
	TableDeletedMessages = "deleted_messages"
)

// Mutation operations carried by a MutationEvent.
const (
	OpAdd    = "add"
	OpDelete = "delete"
	OpUpdate = "update"
)
