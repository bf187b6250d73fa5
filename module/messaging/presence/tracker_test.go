package presence

import (
	"context"
	"testing"
	"time"

	"teamchat/module/messaging/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusStore struct {
	recs map[string]*model.PresenceRecord
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{recs: map[string]*model.PresenceRecord{}}
}

func (f *fakeStatusStore) SetStatus(_ context.Context, userID string, online bool, at time.Time) (bool, error) {
	rec, ok := f.recs[userID]
	if !ok {
		rec = &model.PresenceRecord{UserID: userID}
		f.recs[userID] = rec
	}
	if !at.After(rec.UpdatedAt) {
		return false, nil
	}
	changed := rec.IsOnline != online
	rec.IsOnline = online
	rec.LastSeen = at
	rec.UpdatedAt = at
	return changed, nil
}

func (f *fakeStatusStore) MarkOfflineIfStale(_ context.Context, userID string, cutoff, at time.Time) (bool, error) {
	rec, ok := f.recs[userID]
	if !ok || !rec.IsOnline || !rec.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	rec.IsOnline = false
	rec.LastSeen = at
	rec.UpdatedAt = at
	return true, nil
}

func (f *fakeStatusStore) Get(_ context.Context, userID string) (model.PresenceRecord, error) {
	if rec, ok := f.recs[userID]; ok {
		return *rec, nil
	}
	return model.PresenceRecord{UserID: userID}, nil
}

func (f *fakeStatusStore) ListStaleOnline(_ context.Context, cutoff time.Time) ([]model.PresenceRecord, error) {
	var out []model.PresenceRecord
	for _, rec := range f.recs {
		if rec.IsOnline && rec.UpdatedAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time          { return c.now }
func (c *stubClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newStubClock() *stubClock { return &stubClock{now: time.Unix(1700000000, 0)} }

func newTestTracker(s StatusStore) (*Tracker, *stubClock) {
	clk := newStubClock()
	return NewTracker(s, nil).WithClock(clk.Now), clk
}

func TestSetOnlineReportsTransitionOnce(t *testing.T) {
	store := newFakeStatusStore()
	tracker, clk := newTestTracker(store)
	ctx := context.Background()

	rec, changed, err := tracker.SetOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, rec.IsOnline)

	clk.Advance(time.Second)
	_, changed, err = tracker.SetOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, changed, "already online, no transition")
}

func TestSetOfflineStampsLastSeen(t *testing.T) {
	store := newFakeStatusStore()
	tracker, clk := newTestTracker(store)
	ctx := context.Background()

	_, _, err := tracker.SetOnline(ctx, "alice")
	require.NoError(t, err)

	clk.Advance(time.Minute)
	rec, changed, err := tracker.SetOffline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, rec.IsOnline)
	assert.Equal(t, clk.Now(), rec.LastSeen)

	got, err := tracker.Status(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	assert.Equal(t, clk.Now(), got.LastSeen)
}

func TestStatusUnknownUserReadsOffline(t *testing.T) {
	tracker, _ := newTestTracker(newFakeStatusStore())

	rec, err := tracker.Status(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, rec.IsOnline)
	assert.True(t, rec.LastSeen.IsZero())
}

func TestSweepStaleFlipsSilentUsersOnce(t *testing.T) {
	store := newFakeStatusStore()
	tracker, clk := newTestTracker(store)
	ctx := context.Background()

	_, _, err := tracker.SetOnline(ctx, "alice")
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	_, _, err = tracker.SetOnline(ctx, "bob")
	require.NoError(t, err)

	// alice has been silent past the timeout, bob has not
	clk.Advance(100 * time.Second)
	flipped, err := tracker.SweepStale(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, flipped, 1)
	assert.Equal(t, "alice", flipped[0].UserID)
	assert.False(t, flipped[0].IsOnline)

	// second sweep reports nothing; the transition is never emitted twice
	flipped, err = tracker.SweepStale(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, flipped)
}

func TestSweepStaleLosesToFreshRegister(t *testing.T) {
	store := newFakeStatusStore()
	tracker, clk := newTestTracker(store)
	ctx := context.Background()

	_, _, err := tracker.SetOnline(ctx, "alice")
	require.NoError(t, err)

	// a reconnect refreshes the record just before the sweep writes
	clk.Advance(3 * time.Minute)
	_, err = store.SetStatus(ctx, "alice", true, clk.Now())
	require.NoError(t, err)

	flipped, err := tracker.SweepStale(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, flipped)

	rec, err := tracker.Status(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, rec.IsOnline, "fresh register wins the race")
}

func TestHeartbeatKeepsUserOutOfSweep(t *testing.T) {
	store := newFakeStatusStore()
	tracker, clk := newTestTracker(store)
	ctx := context.Background()

	_, _, err := tracker.SetOnline(ctx, "alice")
	require.NoError(t, err)

	clk.Advance(90 * time.Second)
	require.NoError(t, tracker.Heartbeat(ctx, "alice"))

	clk.Advance(90 * time.Second)
	flipped, err := tracker.SweepStale(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, flipped)
}
