package realtime

import (
	"context"
	"sync"
	"time"

	"teamchat/logger"
)

// RoomDirectory computes the room set a fresh session subscribes to.
// roster.Resolver implements it.
type RoomDirectory interface {
	RoomsForUser(ctx context.Context, userID string) ([]string, error)
}

// PresenceEvents receives session lifecycle transitions. The dispatcher
// implements it, recording the transition and broadcasting when the
// online flag actually flipped.
type PresenceEvents interface {
	UserOnline(ctx context.Context, userID string)
	UserOffline(ctx context.Context, userID string)
}

// Config tunes the registry. Clock is injectable for tests.
type Config struct {
	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int
	Clock         func() time.Time
}

func (c *Config) norm() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 8
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 1024
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Registry maps users to live sessions. One session per user: a second
// register for the same user supersedes the first, whose handle stays
// open but unmapped until its own teardown runs. Both directions of the
// user/conn mapping are indexed and kept in step under one lock.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]*Client             // user_id -> live session
	byConn map[string]*Client             // conn_id -> session
	rooms  map[string]map[string]struct{} // conn_id -> room set

	conf     Config
	dir      RoomDirectory
	presence PresenceEvents // may be nil
	fanout   *Fanout
}

func NewRegistry(conf Config, dir RoomDirectory, presence PresenceEvents) *Registry {
	conf.norm()
	return &Registry{
		byUser:   make(map[string]*Client),
		byConn:   make(map[string]*Client),
		rooms:    make(map[string]map[string]struct{}),
		conf:     conf,
		dir:      dir,
		presence: presence,
		fanout:   NewFanout(conf.FanoutWorkers, conf.FanoutQueue),
	}
}

func (r *Registry) Conf() Config { return r.conf }

// BindPresence attaches the presence sink after construction. The
// registry and the dispatcher reference each other, so one side binds
// late; call this during wiring, before any session registers.
func (r *Registry) BindPresence(p PresenceEvents) { r.presence = p }

// Register installs c as the user's live session. The room set is rebuilt
// from the directory on every call so stale memberships never survive a
// reconnect. Returns the superseded session, if any; the caller decides
// what to do with its socket.
func (r *Registry) Register(ctx context.Context, c *Client) (*Client, error) {
	roomList, err := r.dir.RoomsForUser(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(roomList))
	for _, room := range roomList {
		set[room] = struct{}{}
	}

	r.mu.Lock()
	prev := r.byUser[c.UserID]
	if prev != nil {
		// unmap only; the old socket's own teardown finds nothing to do
		delete(r.byConn, prev.ConnID)
		delete(r.rooms, prev.ConnID)
	}
	r.byUser[c.UserID] = c
	r.byConn[c.ConnID] = c
	r.rooms[c.ConnID] = set
	r.mu.Unlock()

	if prev != nil {
		logger.Infof("[registry] superseded session user=%s old=%s new=%s", c.UserID, prev.ConnID, c.ConnID)
	}
	if r.presence != nil {
		r.presence.UserOnline(ctx, c.UserID)
	}
	return prev, nil
}

// Unregister tears down the session behind connID. A handle that was
// already superseded is not in the index anymore, so its teardown is a
// no-op and in particular emits no offline transition for the user's
// newer session.
func (r *Registry) Unregister(ctx context.Context, connID string) bool {
	r.mu.Lock()
	c, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byConn, connID)
	delete(r.rooms, connID)
	if live := r.byUser[c.UserID]; live != nil && live.ConnID == connID {
		delete(r.byUser, c.UserID)
	}
	r.mu.Unlock()

	if r.presence != nil {
		r.presence.UserOffline(ctx, c.UserID)
	}
	return true
}

// Lookup returns the user's live session.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// LookupConn returns the session behind a connection id.
func (r *Registry) LookupConn(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	return c, ok
}

func (r *Registry) IsMemberOfRoom(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.rooms[connID]
	_, ok := set[room]
	return ok
}

// JoinRoom adds an ad-hoc subscription, e.g. after an authorized
// join_room request. Unknown connections are ignored.
func (r *Registry) JoinRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set := r.rooms[connID]; set != nil {
		set[room] = struct{}{}
	}
}

func (r *Registry) LeaveRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set := r.rooms[connID]; set != nil {
		delete(set, room)
	}
}

// RevokeRoom drops a room from the user's live session, used when a
// membership change removes them mid-session.
func (r *Registry) RevokeRoom(userID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.byUser[userID]
	if c == nil {
		return
	}
	if set := r.rooms[c.ConnID]; set != nil {
		delete(set, room)
	}
}

// Push enqueues a payload for the user's live session. Reports false when
// the user has no session or the session's queue is full; the payload is
// dropped either way.
func (r *Registry) Push(userID string, payload []byte) bool {
	c, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	if !c.Enqueue(payload) {
		logger.Warnf("[registry] send queue full or closed, drop user=%s conn=%s", userID, c.ConnID)
		return false
	}
	return true
}

// PushMany fans a payload out to every listed user through the worker
// pool. Users without a session are skipped.
func (r *Registry) PushMany(userIDs []string, payload []byte) {
	if len(userIDs) == 0 || len(payload) == 0 {
		return
	}
	r.mu.RLock()
	conns := make([]*Client, 0, len(userIDs))
	for _, u := range userIDs {
		if c := r.byUser[u]; c != nil {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()
	r.fanout.Broadcast(conns, payload)
}

// Sessions reports the number of live sessions.
func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
