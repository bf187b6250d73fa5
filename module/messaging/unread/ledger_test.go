package unread

import (
	"context"
	"testing"
	"time"

	"teamchat/module/messaging/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummaryStore struct {
	rows map[string]*model.ConversationSummary // keyed user|conv
	msgs map[string][]fakeMsg                  // keyed by conversation
}

type fakeMsg struct {
	id     string
	sender string
	readBy map[string]bool
}

func newFakeStore() *fakeSummaryStore {
	return &fakeSummaryStore{
		rows: map[string]*model.ConversationSummary{},
		msgs: map[string][]fakeMsg{},
	}
}

func key(user, conv string) string { return user + "|" + conv }

func (f *fakeSummaryStore) Upsert(_ context.Context, up SummaryUpsert) error {
	row, ok := f.rows[key(up.UserID, up.ConversationID)]
	if !ok {
		row = &model.ConversationSummary{UserID: up.UserID, ConversationID: up.ConversationID}
		f.rows[key(up.UserID, up.ConversationID)] = row
	}
	row.Type = up.Type
	row.LastMessageContent = up.Snippet
	row.LastMessageAt = up.LastMessageAt
	if up.IncUnread {
		row.UnreadCount++
	} else {
		row.UnreadCount = 0
	}
	return nil
}

func (f *fakeSummaryStore) ResetUnread(_ context.Context, user, conv string) (int64, error) {
	row, ok := f.rows[key(user, conv)]
	if !ok || row.UnreadCount == 0 {
		return 0, nil
	}
	row.UnreadCount = 0
	return 1, nil
}

func (f *fakeSummaryStore) MarkMessagesRead(_ context.Context, conv, user string, _ time.Time) (int64, error) {
	var n int64
	for i := range f.msgs[conv] {
		m := &f.msgs[conv][i]
		if m.sender == user || m.readBy[user] {
			continue
		}
		if m.readBy == nil {
			m.readBy = map[string]bool{}
		}
		m.readBy[user] = true
		n++
	}
	return n, nil
}

func (f *fakeSummaryStore) UnreadCount(_ context.Context, user, conv string) (int64, error) {
	if row, ok := f.rows[key(user, conv)]; ok {
		return row.UnreadCount, nil
	}
	return 0, nil
}

func (f *fakeSummaryStore) ListForUser(_ context.Context, user string) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	for _, row := range f.rows {
		if row.UserID == user {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeSummaryStore) Remove(_ context.Context, user, conv string) error {
	delete(f.rows, key(user, conv))
	return nil
}

type fakeMirror struct {
	counts map[string]int64
}

func newFakeMirror() *fakeMirror { return &fakeMirror{counts: map[string]int64{}} }

func (f *fakeMirror) Incr(_ context.Context, user, conv string) (int64, error) {
	f.counts[key(user, conv)]++
	return f.counts[key(user, conv)], nil
}
func (f *fakeMirror) Reset(_ context.Context, user, conv string) error {
	f.counts[key(user, conv)] = 0
	return nil
}
func (f *fakeMirror) Get(_ context.Context, user, conv string) (int64, bool, error) {
	n, ok := f.counts[key(user, conv)]
	return n, ok, nil
}
func (f *fakeMirror) Set(_ context.Context, user, conv string, n int64) error {
	f.counts[key(user, conv)] = n
	return nil
}
func (f *fakeMirror) Drop(_ context.Context, user, conv string) error {
	delete(f.counts, key(user, conv))
	return nil
}

func dmInput(conv, sender string, participants ...string) RecordInput {
	in := RecordInput{
		ConversationID: conv,
		Type:           model.ConversationTypeDM,
		SenderID:       sender,
		Snippet:        "hello",
		SentAt:         time.Now(),
	}
	for _, p := range participants {
		in.Participants = append(in.Participants, Participant{UserID: p})
	}
	return in
}

func TestRecordMessageIncrementsRecipientsOnly(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedger(store, newFakeMirror())
	ctx := context.Background()
	conv := model.DMConversationID("alice", "bob")

	require.NoError(t, ledger.RecordMessage(ctx, dmInput(conv, "alice", "alice", "bob")))

	n, err := ledger.UnreadCount(ctx, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = ledger.UnreadCount(ctx, "alice", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "sender's own counter is never incremented")
}

func TestRecordMessageExactlyOncePerMessage(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedger(store, nil)
	ctx := context.Background()
	conv := "g1"

	in := RecordInput{
		ConversationID: conv,
		Type:           model.ConversationTypeGroup,
		GroupID:        "g1",
		SenderID:       "alice",
		Snippet:        "hi team",
		SentAt:         time.Now(),
		Participants: []Participant{
			{UserID: "alice"}, {UserID: "bob"}, {UserID: "carol"},
		},
	}
	require.NoError(t, ledger.RecordMessage(ctx, in))
	require.NoError(t, ledger.RecordMessage(ctx, in))

	for user, want := range map[string]int64{"alice": 0, "bob": 2, "carol": 2} {
		n, err := ledger.UnreadCount(ctx, user, conv)
		require.NoError(t, err)
		assert.Equal(t, want, n, user)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedger(store, newFakeMirror())
	ctx := context.Background()
	conv := model.DMConversationID("alice", "bob")

	require.NoError(t, ledger.RecordMessage(ctx, dmInput(conv, "alice", "alice", "bob")))

	modified, err := ledger.MarkRead(ctx, "bob", conv, model.ConversationTypeDM)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	n, err := ledger.UnreadCount(ctx, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// second call: still zero, modified count may be zero
	modified, err = ledger.MarkRead(ctx, "bob", conv, model.ConversationTypeDM)
	require.NoError(t, err)
	assert.Equal(t, int64(0), modified)

	n, err = ledger.UnreadCount(ctx, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMarkReadGroupAppendsReceipts(t *testing.T) {
	store := newFakeStore()
	store.msgs["g1"] = []fakeMsg{
		{id: "m1", sender: "alice"},
		{id: "m2", sender: "alice"},
		{id: "m3", sender: "bob"},
	}
	ledger := NewLedger(store, nil)
	ctx := context.Background()

	modified, err := ledger.MarkRead(ctx, "bob", "g1", model.ConversationTypeGroup)
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified, "bob's own message is not receipted")

	// re-entrant: nothing left to mark
	modified, err = ledger.MarkRead(ctx, "bob", "g1", model.ConversationTypeGroup)
	require.NoError(t, err)
	assert.Equal(t, int64(0), modified)
}

func TestUnreadCountBackfillsMirror(t *testing.T) {
	store := newFakeStore()
	mirror := newFakeMirror()
	ledger := NewLedger(store, mirror)
	ctx := context.Background()
	conv := model.DMConversationID("alice", "bob")

	// authoritative row exists without a mirror entry (e.g. mirror flushed)
	store.rows[key("bob", conv)] = &model.ConversationSummary{
		UserID: "bob", ConversationID: conv, UnreadCount: 7,
	}

	n, err := ledger.UnreadCount(ctx, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	got, ok, _ := mirror.Get(ctx, "bob", conv)
	assert.True(t, ok)
	assert.Equal(t, int64(7), got, "mirror backfilled from the authoritative counter")
}

func TestEvictRemovesRowAndMirror(t *testing.T) {
	store := newFakeStore()
	mirror := newFakeMirror()
	ledger := NewLedger(store, mirror)
	ctx := context.Background()

	require.NoError(t, ledger.RecordMessage(ctx, dmInput("g1", "alice", "alice", "bob")))
	require.NoError(t, ledger.Evict(ctx, "bob", "g1"))

	n, err := ledger.UnreadCount(ctx, "bob", "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
