package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	rooms map[string][]string
}

func (f *fakeDirectory) RoomsForUser(_ context.Context, userID string) ([]string, error) {
	return f.rooms[userID], nil
}

type fakePresence struct {
	online  []string
	offline []string
}

func (f *fakePresence) UserOnline(_ context.Context, userID string) {
	f.online = append(f.online, userID)
}

func (f *fakePresence) UserOffline(_ context.Context, userID string) {
	f.offline = append(f.offline, userID)
}

func newTestRegistry(dir *fakeDirectory, pres PresenceEvents) *Registry {
	return NewRegistry(Config{SendQueueSize: 8, FanoutWorkers: 2, FanoutQueue: 8}, dir, pres)
}

func session(connID, userID string) *Client {
	return NewClient(connID, userID, nil, 8)
}

func recv(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(time.Second):
		t.Fatal("no payload delivered")
		return nil
	}
}

func TestRegisterLastWriterWins(t *testing.T) {
	dir := &fakeDirectory{rooms: map[string][]string{"alice": {"user:alice"}}}
	reg := newTestRegistry(dir, nil)
	ctx := context.Background()

	h1 := session("c1", "alice")
	prev, err := reg.Register(ctx, h1)
	require.NoError(t, err)
	assert.Nil(t, prev)

	h2 := session("c2", "alice")
	prev, err = reg.Register(ctx, h2)
	require.NoError(t, err)
	assert.Same(t, h1, prev, "superseded session handed back to the caller")

	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, h2, got, "lookup never returns the superseded session")

	assert.True(t, reg.Push("alice", []byte("hi")))
	assert.Equal(t, []byte("hi"), recv(t, h2.Send))
	assert.Empty(t, h1.Send, "nothing routed to the old session")
}

func TestUnregisterSupersededIsNoOp(t *testing.T) {
	dir := &fakeDirectory{rooms: map[string][]string{"alice": {"user:alice"}}}
	pres := &fakePresence{}
	reg := newTestRegistry(dir, pres)
	ctx := context.Background()

	h1 := session("c1", "alice")
	_, err := reg.Register(ctx, h1)
	require.NoError(t, err)
	h2 := session("c2", "alice")
	_, err = reg.Register(ctx, h2)
	require.NoError(t, err)

	// the old socket's teardown arrives after the reconnect
	assert.False(t, reg.Unregister(ctx, "c1"))
	assert.Empty(t, pres.offline, "no offline transition for a superseded handle")

	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, h2, got)

	// the live session's teardown still works
	assert.True(t, reg.Unregister(ctx, "c2"))
	assert.Equal(t, []string{"alice"}, pres.offline)
	_, ok = reg.Lookup("alice")
	assert.False(t, ok)
}

func TestUnregisterUnknownConn(t *testing.T) {
	reg := newTestRegistry(&fakeDirectory{}, nil)
	assert.False(t, reg.Unregister(context.Background(), "nope"))
}

func TestRoomsRebuiltOnRegister(t *testing.T) {
	dir := &fakeDirectory{rooms: map[string][]string{
		"alice": {"user:alice", "group:g1"},
	}}
	reg := newTestRegistry(dir, nil)
	ctx := context.Background()

	h1 := session("c1", "alice")
	_, err := reg.Register(ctx, h1)
	require.NoError(t, err)
	assert.True(t, reg.IsMemberOfRoom("c1", "group:g1"))

	// membership changed while disconnected; the reconnect rebuilds from scratch
	dir.rooms["alice"] = []string{"user:alice"}
	h2 := session("c2", "alice")
	_, err = reg.Register(ctx, h2)
	require.NoError(t, err)
	assert.False(t, reg.IsMemberOfRoom("c2", "group:g1"))
	assert.True(t, reg.IsMemberOfRoom("c2", "user:alice"))
}

func TestJoinAndRevokeRoom(t *testing.T) {
	dir := &fakeDirectory{rooms: map[string][]string{"alice": {"user:alice"}}}
	reg := newTestRegistry(dir, nil)
	ctx := context.Background()

	h := session("c1", "alice")
	_, err := reg.Register(ctx, h)
	require.NoError(t, err)

	reg.JoinRoom("c1", "task:t1")
	assert.True(t, reg.IsMemberOfRoom("c1", "task:t1"))

	reg.RevokeRoom("alice", "task:t1")
	assert.False(t, reg.IsMemberOfRoom("c1", "task:t1"))

	// revoking for a user without a session is harmless
	reg.RevokeRoom("ghost", "task:t1")
}

func TestPushOfflineUserDropped(t *testing.T) {
	reg := newTestRegistry(&fakeDirectory{}, nil)
	assert.False(t, reg.Push("ghost", []byte("hi")))
}

func TestPushToClosedSessionDropped(t *testing.T) {
	dir := &fakeDirectory{rooms: map[string][]string{"alice": {"user:alice"}}}
	reg := newTestRegistry(dir, nil)

	h := session("c1", "alice")
	_, err := reg.Register(context.Background(), h)
	require.NoError(t, err)

	h.Close()
	assert.False(t, reg.Push("alice", []byte("hi")))
}

func TestPushManySkipsOffline(t *testing.T) {
	dir := &fakeDirectory{rooms: map[string][]string{}}
	reg := newTestRegistry(dir, nil)
	ctx := context.Background()

	bob := session("c1", "bob")
	carol := session("c2", "carol")
	_, err := reg.Register(ctx, bob)
	require.NoError(t, err)
	_, err = reg.Register(ctx, carol)
	require.NoError(t, err)

	reg.PushMany([]string{"bob", "carol", "dave"}, []byte("hello"))

	assert.Equal(t, []byte("hello"), recv(t, bob.Send))
	assert.Equal(t, []byte("hello"), recv(t, carol.Send))
}
