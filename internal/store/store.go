// Package store is the in-process relational data model: users, messages,
// and their tombstones, guarded by a single RWMutex.
//
//  1. A single mutex protects every table. Writers take the write lock for
//     the whole of a logical transaction (the mutation plus any read-back
//     needed to build the replication event); readers take the read lock.
//  2. There is no on-disk WAL or snapshot file — a process that dies loses
//     its local rows and must re-register (follower) or yield the cluster
//     to an election (leader). SnapshotAll/ApplyEvent exist purely to move
//     the *in-memory* state across the wire to a newly-registering
//     follower — the network is the only durability this system has.
//
// Every write returns the committed row so the RPC layer can build a
// replication event whose payload reflects server-assigned ids.
package store

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

var (
	ErrUserNameExists      = errors.New("username already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrReceiverNotFound    = errors.New("receiver does not exist")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUnknownTable        = errors.New("unknown replication table")
	ErrUnknownOp           = errors.New("unknown replication op")
)

// UnreadCount is one row of GetUnreadCounts' result.
type UnreadCount struct {
	From  string `json:"from"`
	Count int    `json:"count"`
}

// UserStatus is one row of ListUsers' result.
type UserStatus struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// Snapshot is the entire store at an instant, serialized for a
// newly-registering follower.
type Snapshot struct {
	Users           []*model.User           `json:"users"`
	Messages        []*model.Message        `json:"messages"`
	DeletedMessages []*model.DeletedMessage `json:"deleted_messages"`
}

// Store is the data model collaborator (C1). Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	// selfID is this node's identity. Row versions are plain counters bumped
	// on every leader-side write and do not use it; followers apply whatever
	// version the event already carries.
	selfID string

	users    map[int64]*model.User
	byName   map[string]int64 // lowercased username -> user id
	bySession map[string]int64

	messages map[int64]*model.Message
	deleted  map[int64]*model.DeletedMessage

	nextUserID    int64
	nextMessageID int64
	nextDeletedID int64
}

// New creates an empty Store owned by the node identified by selfID.
func New(selfID string) *Store {
	return &Store{
		selfID:    selfID,
		users:     make(map[int64]*model.User),
		byName:    make(map[string]int64),
		bySession: make(map[string]int64),
		messages:  make(map[int64]*model.Message),
		deleted:   make(map[int64]*model.DeletedMessage),
	}
}

// ─── Users ──────────────────────────────────────────────────────────────────

// CreateUser inserts a new user with the given (already hashed) password.
func (s *Store) CreateUser(username string, passwordHash []byte) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if _, exists := s.byName[key]; exists {
		return nil, ErrUserNameExists
	}

	s.nextUserID++
	u := &model.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
	}
	u.Version = 1
	s.users[u.ID] = u
	s.byName[key] = u.ID
	return cloneUser(u), nil
}

// FindUserByName looks up a user by exact username (case-insensitive).
func (s *Store) FindUserByName(username string) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return nil, false
	}
	return cloneUser(s.users[id]), true
}

// FindUserByID looks up a user by its store-assigned id.
func (s *Store) FindUserByID(userID int64) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	return cloneUser(u), true
}

// FindUserBySession looks up the user owning an active session token.
func (s *Store) FindUserBySession(sessionID string) (*model.User, bool) {
	if sessionID == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySession[sessionID]
	if !ok {
		return nil, false
	}
	return cloneUser(s.users[id]), true
}

// SetSession marks userID logged in with a fresh session token.
func (s *Store) SetSession(userID int64, sessionID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if u.SessionID != "" {
		delete(s.bySession, u.SessionID)
	}
	u.SessionID = sessionID
	u.LoggedIn = true
	u.Version++
	s.bySession[sessionID] = userID
	return cloneUser(u), nil
}

// ClearSession logs userID out.
func (s *Store) ClearSession(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if u.SessionID != "" {
		delete(s.bySession, u.SessionID)
	}
	u.SessionID = ""
	u.LoggedIn = false
	u.Version++
	return nil
}

// ListUsers returns every user whose lowercased username matches pattern
// (shell-style globbing; an empty pattern matches everything).
func (s *Store) ListUsers(pattern string) []UserStatus {
	if pattern == "" {
		pattern = "*"
	}
	pattern = strings.ToLower(pattern)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UserStatus, 0, len(s.users))
	for _, u := range s.users {
		ok, err := filepath.Match(pattern, strings.ToLower(u.Username))
		if err != nil || !ok {
			continue
		}
		status := "offline"
		if u.LoggedIn {
			status = "online"
		}
		out = append(out, UserStatus{Username: u.Username, Status: status})
	}
	return out
}

// DeleteUserCascade removes userID and tombstones every message addressed to
// it, returning the tombstones so the caller can fan out delete events.
func (s *Store) DeleteUserCascade(userID int64) (*model.User, []*model.DeletedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, nil, ErrUserNotFound
	}

	var tombstones []*model.DeletedMessage
	for id, m := range s.messages {
		if m.ReceiverID != userID {
			continue
		}
		tombstones = append(tombstones, s.tombstoneLocked(m))
		delete(s.messages, id)
	}

	delete(s.users, userID)
	delete(s.byName, strings.ToLower(u.Username))
	if u.SessionID != "" {
		delete(s.bySession, u.SessionID)
	}
	return cloneUser(u), tombstones, nil
}

// ─── Messages ───────────────────────────────────────────────────────────────

// InsertMessage records a new message from sender to receiver.
func (s *Store) InsertMessage(senderID, receiverID int64, content string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[receiverID]; !ok {
		return nil, ErrReceiverNotFound
	}

	s.nextMessageID++
	m := &model.Message{
		ID:         s.nextMessageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		TimeStamp:  monotonicTimestamp(s.messages, senderID, receiverID),
		Version:    1,
	}
	s.messages[m.ID] = m
	return cloneMessage(m), nil
}

// MarkReceived flips is_received to true for every id in ids addressed to
// userID, returning the rows actually updated (already-received or
// not-addressed-to-userID ids are skipped silently).
func (s *Store) MarkReceived(ids []int64, userID int64) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markReceivedLocked(ids, userID)
}

func (s *Store) markReceivedLocked(ids []int64, userID int64) []*model.Message {
	var out []*model.Message
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.ReceiverID != userID || m.IsReceived {
			continue
		}
		m.IsReceived = true
		m.Version++
		out = append(out, cloneMessage(m))
	}
	return out
}

// FetchUnreadFor returns every unread message addressed to userID and marks
// them received, via MarkReceived.
func (s *Store) FetchUnreadFor(userID int64) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, m := range s.messages {
		if m.ReceiverID == userID && !m.IsReceived {
			ids = append(ids, m.ID)
		}
	}
	out := s.markReceivedLocked(ids, userID)
	sortByTime(out)
	return out
}

// FetchChat returns every message between a and b ordered by time stamp,
// flipping any message received by caller (a) to received.
func (s *Store) FetchChat(caller, other int64) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toMark []int64
	for _, m := range s.messages {
		if (m.SenderID == caller && m.ReceiverID == other) || (m.SenderID == other && m.ReceiverID == caller) {
			if m.ReceiverID == caller && !m.IsReceived {
				toMark = append(toMark, m.ID)
			}
		}
	}
	s.markReceivedLocked(toMark, caller)

	var out []*model.Message
	for _, m := range s.messages {
		if (m.SenderID == caller && m.ReceiverID == other) ||
			(m.SenderID == other && m.ReceiverID == caller) {
			out = append(out, cloneMessage(m))
		}
	}
	sortByTime(out)
	return out
}

// CountUnreadBySender returns, for userID, how many unread messages each
// other sender has pending (self-sends excluded).
func (s *Store) CountUnreadBySender(userID int64) []UnreadCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int)
	for _, m := range s.messages {
		if m.ReceiverID == userID && m.SenderID != userID && !m.IsReceived {
			counts[m.SenderID]++
		}
	}

	out := make([]UnreadCount, 0, len(counts))
	for senderID, n := range counts {
		sender, ok := s.users[senderID]
		if !ok {
			continue
		}
		out = append(out, UnreadCount{From: sender.Username, Count: n})
	}
	return out
}

// DeleteMessages tombstones and removes every id in ids that userID is the
// sender or receiver of, returning the tombstones written.
func (s *Store) DeleteMessages(ids []int64, userID int64) []*model.DeletedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tombstones []*model.DeletedMessage
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok {
			continue
		}
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		tombstones = append(tombstones, s.tombstoneLocked(m))
		delete(s.messages, id)
	}
	return tombstones
}

// tombstoneLocked writes a DeletedMessage mirroring m. Caller must hold mu.
func (s *Store) tombstoneLocked(m *model.Message) *model.DeletedMessage {
	s.nextDeletedID++
	d := &model.DeletedMessage{
		ID:                s.nextDeletedID,
		SenderID:          m.SenderID,
		ReceiverID:        m.ReceiverID,
		Content:           m.Content,
		IsReceived:        m.IsReceived,
		TimeStamp:         m.TimeStamp,
		OriginalMessageID: m.ID,
		Version:           1,
	}
	s.deleted[d.ID] = d
	return d
}

// ─── Snapshot / replication plumbing ───────────────────────────────────────

// SnapshotAll serializes the entire store for a newly-registering follower.
func (s *Store) SnapshotAll() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Users:           make([]*model.User, 0, len(s.users)),
		Messages:        make([]*model.Message, 0, len(s.messages)),
		DeletedMessages: make([]*model.DeletedMessage, 0, len(s.deleted)),
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, cloneUser(u))
	}
	for _, m := range s.messages {
		snap.Messages = append(snap.Messages, cloneMessage(m))
	}
	for _, d := range s.deleted {
		dc := *d
		snap.DeletedMessages = append(snap.DeletedMessages, &dc)
	}
	return snap
}

// LoadSnapshot replaces the store's contents wholesale — used by a follower
// right after RegisterFollower returns a snapshot.
func (s *Store) LoadSnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()

	for _, u := range snap.Users {
		uc := *u
		s.users[uc.ID] = &uc
		s.byName[strings.ToLower(uc.Username)] = uc.ID
		if uc.SessionID != "" {
			s.bySession[uc.SessionID] = uc.ID
		}
		if uc.ID > s.nextUserID {
			s.nextUserID = uc.ID
		}
	}
	for _, m := range snap.Messages {
		mc := *m
		s.messages[mc.ID] = &mc
		if mc.ID > s.nextMessageID {
			s.nextMessageID = mc.ID
		}
	}
	for _, d := range snap.DeletedMessages {
		dc := *d
		s.deleted[dc.ID] = &dc
		if dc.ID > s.nextDeletedID {
			s.nextDeletedID = dc.ID
		}
	}
}

// WipeAndRecreate clears the store back to empty — called by a follower
// adopting a new leader, before it re-registers and loads a fresh snapshot.
func (s *Store) WipeAndRecreate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.users = make(map[int64]*model.User)
	s.byName = make(map[string]int64)
	s.bySession = make(map[string]int64)
	s.messages = make(map[int64]*model.Message)
	s.deleted = make(map[int64]*model.DeletedMessage)
	s.nextUserID, s.nextMessageID, s.nextDeletedID = 0, 0, 0
}

// ApplyEvent applies a single replicated mutation. Errors are the caller's
// cue to log-and-drop (at-most-once, never retried).
func (s *Store) ApplyEvent(ev model.MutationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Table {
	case model.TableUsers:
		return s.applyUserEventLocked(ev)
	case model.TableMessages:
		return s.applyMessageEventLocked(ev)
	case model.TableDeletedMessages:
		return s.applyDeletedEventLocked(ev)
	default:
		return ErrUnknownTable
	}
}

func (s *Store) applyUserEventLocked(ev model.MutationEvent) error {
	row, ok := ev.Row.(*model.User)
	if !ok {
		return ErrUnknownTable
	}
	switch ev.Op {
	case model.OpAdd, model.OpUpdate:
		if existing, ok := s.users[row.ID]; ok {
			if existing.Version >= row.Version && ev.Op == model.OpUpdate {
				return nil // stale or duplicate — no-op (R2)
			}
			delete(s.byName, strings.ToLower(existing.Username))
			if existing.SessionID != "" {
				delete(s.bySession, existing.SessionID)
			}
		}
		uc := *row
		s.users[uc.ID] = &uc
		s.byName[strings.ToLower(uc.Username)] = uc.ID
		if uc.SessionID != "" {
			s.bySession[uc.SessionID] = uc.ID
		}
		if uc.ID > s.nextUserID {
			s.nextUserID = uc.ID
		}
	case model.OpDelete:
		if existing, ok := s.users[row.ID]; ok {
			delete(s.byName, strings.ToLower(existing.Username))
			if existing.SessionID != "" {
				delete(s.bySession, existing.SessionID)
			}
			delete(s.users, row.ID)
		}
	default:
		return ErrUnknownOp
	}
	return nil
}

func (s *Store) applyMessageEventLocked(ev model.MutationEvent) error {
	row, ok := ev.Row.(*model.Message)
	if !ok {
		return ErrUnknownTable
	}
	switch ev.Op {
	case model.OpAdd, model.OpUpdate:
		if existing, ok := s.messages[row.ID]; ok && existing.Version >= row.Version && ev.Op == model.OpUpdate {
			return nil
		}
		mc := *row
		s.messages[mc.ID] = &mc
		if mc.ID > s.nextMessageID {
			s.nextMessageID = mc.ID
		}
	case model.OpDelete:
		delete(s.messages, row.ID)
	default:
		return ErrUnknownOp
	}
	return nil
}

func (s *Store) applyDeletedEventLocked(ev model.MutationEvent) error {
	row, ok := ev.Row.(*model.DeletedMessage)
	if !ok {
		return ErrUnknownTable
	}
	if ev.Op != model.OpAdd {
		return ErrUnknownOp
	}
	dc := *row
	s.deleted[dc.ID] = &dc
	if dc.ID > s.nextDeletedID {
		s.nextDeletedID = dc.ID
	}
	return nil
}

// Close releases any resources held by the store. There is no file handle
// or connection to release here; it exists so callers can treat Store
// uniformly with other closeable resources.
func (s *Store) Close() error { return nil }

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func cloneMessage(m *model.Message) *model.Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func sortByTime(msgs []*model.Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j-1].TimeStamp.After(msgs[j].TimeStamp); j-- {
			msgs[j-1], msgs[j] = msgs[j], msgs[j-1]
		}
	}
}

// monotonicTimestamp returns a time.Time guaranteed to be >= the latest
// existing message between sender and receiver, preserving the per-pair
// ordering invariant even if two Sends race on the same wall-clock tick.
func monotonicTimestamp(messages map[int64]*model.Message, senderID, receiverID int64) time.Time {
	now := time.Now().UTC()
	for _, m := range messages {
		if (m.SenderID == senderID && m.ReceiverID == receiverID) && m.TimeStamp.After(now) {
			now = m.TimeStamp
		}
	}
	return now
}
