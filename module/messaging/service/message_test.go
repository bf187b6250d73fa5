package service

import (
	"context"
	"testing"
	"time"

	"teamchat/module/messaging/dispatch"
	"teamchat/module/messaging/model"
	"teamchat/tools/errs"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeRepo struct {
	msgs map[string]*model.Message
}

func newFakeRepo() *fakeRepo { return &fakeRepo{msgs: map[string]*model.Message{}} }

func (f *fakeRepo) Insert(_ context.Context, msg *model.Message) error {
	msg.ID = primitive.NewObjectID()
	f.msgs[msg.ID.Hex()] = msg
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*model.Message, error) {
	if m, ok := f.msgs[id]; ok && !m.Deleted {
		return m, nil
	}
	return nil, errs.ErrMessageNotFound
}

func (f *fakeRepo) UpdateContent(_ context.Context, id, senderID, content string, at time.Time) (*model.Message, error) {
	m, ok := f.msgs[id]
	if !ok || m.Deleted {
		return nil, errs.ErrMessageNotFound
	}
	if m.SenderID != senderID {
		return nil, errs.ErrNotMessageOwner
	}
	m.Content = content
	m.EditedAt = &at
	return m, nil
}

func (f *fakeRepo) MarkDeleted(_ context.Context, id, senderID string) (*model.Message, error) {
	m, ok := f.msgs[id]
	if !ok || m.Deleted {
		return nil, errs.ErrMessageNotFound
	}
	if m.SenderID != senderID {
		return nil, errs.ErrNotMessageOwner
	}
	m.Deleted = true
	return m, nil
}

func (f *fakeRepo) ToggleReaction(_ context.Context, id, emoji, userID string) (*model.Message, error) {
	m, ok := f.msgs[id]
	if !ok {
		return nil, errs.ErrMessageNotFound
	}
	if m.Reactions == nil {
		m.Reactions = map[string][]string{}
	}
	for i, u := range m.Reactions[emoji] {
		if u == userID {
			m.Reactions[emoji] = append(m.Reactions[emoji][:i], m.Reactions[emoji][i+1:]...)
			return m, nil
		}
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	return m, nil
}

func (f *fakeRepo) History(_ context.Context, conv string, _ time.Time, _ int64) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.msgs {
		if m.ConversationID == conv && !m.Deleted {
			out = append(out, *m)
		}
	}
	return out, nil
}

type fakeAccess struct {
	members map[string][]string // room -> members
	orgs    map[string]string
}

func (f *fakeAccess) Authorize(_ context.Context, userID, room string) (bool, error) {
	for _, m := range f.members[room] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccess) OrgOf(_ context.Context, userID string) (string, error) {
	return f.orgs[userID], nil
}

type fakeMeta struct{ names map[string]string }

func (f *fakeMeta) GroupName(_ context.Context, id string) (string, error) { return f.names[id], nil }

type fakeLedger struct {
	marked []string // user|conv
}

func (f *fakeLedger) MarkRead(_ context.Context, user, conv, _ string) (int64, error) {
	f.marked = append(f.marked, user+"|"+conv)
	return 1, nil
}

func (f *fakeLedger) UnreadCount(context.Context, string, string) (int64, error) { return 0, nil }

func (f *fakeLedger) Conversations(context.Context, string) ([]model.ConversationSummary, error) {
	return nil, nil
}

type fakeBus struct {
	events []dispatch.Event
	fail   bool
}

func (f *fakeBus) Publish(_ context.Context, ev dispatch.Event) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeNotifier struct {
	receipts []string // reader|conv|peer
}

func (f *fakeNotifier) NotifyRead(_ context.Context, reader, conv, _, peer string, _ time.Time) error {
	f.receipts = append(f.receipts, reader+"|"+conv+"|"+peer)
	return nil
}

func newTestService() (*MessageService, *fakeRepo, *fakeBus, *fakeNotifier, *fakeLedger) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	notifier := &fakeNotifier{}
	ledger := &fakeLedger{}
	access := &fakeAccess{
		members: map[string][]string{model.RoomGroup("g1"): {"alice", "bob"}},
		orgs:    map[string]string{"alice": "org1", "bob": "org1"},
	}
	meta := &fakeMeta{names: map[string]string{"g1": "Engineering"}}
	svc := NewMessageService(repo, access, meta, ledger, bus, notifier)
	return svc, repo, bus, notifier, ledger
}

func TestSendDMCommitsAndPublishes(t *testing.T) {
	svc, repo, bus, _, _ := newTestService()

	msg, err := svc.SendDM(context.Background(), "alice", "bob", "hello")
	require.NoError(t, err)
	assert.Equal(t, model.DMConversationID("alice", "bob"), msg.ConversationID)
	assert.Equal(t, "org1", msg.OrganizationID)
	assert.False(t, msg.ID.IsZero())
	assert.Contains(t, repo.msgs, msg.ID.Hex())

	require.Len(t, bus.events, 1)
	ev := bus.events[0]
	assert.Equal(t, dispatch.MessageSent, ev.Type)
	assert.Equal(t, model.ConversationTypeDM, ev.ConversationType)
	assert.Equal(t, "bob", ev.PeerID)
	assert.Equal(t, msg.ConversationID, ev.PartitionKey())
}

func TestSendGroupMessageRejectsNonMember(t *testing.T) {
	svc, repo, bus, _, _ := newTestService()

	_, err := svc.SendGroupMessage(context.Background(), "mallory", "g1", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNotRoomMember)
	assert.Empty(t, repo.msgs, "nothing written for a rejected send")
	assert.Empty(t, bus.events)
}

func TestSendGroupMessageCarriesGroupName(t *testing.T) {
	svc, _, bus, _, _ := newTestService()

	msg, err := svc.SendGroupMessage(context.Background(), "alice", "g1", "hi team")
	require.NoError(t, err)
	assert.Equal(t, "g1", msg.GroupID)

	require.Len(t, bus.events, 1)
	assert.Equal(t, "Engineering", bus.events[0].GroupName)
	assert.Equal(t, model.ConversationTypeGroup, bus.events[0].ConversationType)
}

func TestEditMessageOwnerOnly(t *testing.T) {
	svc, _, bus, _, _ := newTestService()
	ctx := context.Background()

	msg, err := svc.SendDM(ctx, "alice", "bob", "helo")
	require.NoError(t, err)

	_, err = svc.EditMessage(ctx, "bob", msg.ID.Hex(), "hax")
	assert.ErrorIs(t, err, errs.ErrNotMessageOwner)

	edited, err := svc.EditMessage(ctx, "alice", msg.ID.Hex(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)
	require.NotNil(t, edited.EditedAt)

	assert.Equal(t, dispatch.MessageEdited, bus.events[len(bus.events)-1].Type)
}

func TestDeleteMessagePublishes(t *testing.T) {
	svc, repo, bus, _, _ := newTestService()
	ctx := context.Background()

	msg, err := svc.SendDM(ctx, "alice", "bob", "oops")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteMessage(ctx, "alice", msg.ID.Hex()))

	assert.True(t, repo.msgs[msg.ID.Hex()].Deleted)
	assert.Equal(t, dispatch.MessageDeleted, bus.events[len(bus.events)-1].Type)
}

func TestToggleReactionRequiresMembership(t *testing.T) {
	svc, _, bus, _, _ := newTestService()
	ctx := context.Background()

	msg, err := svc.SendDM(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	_, err = svc.ToggleReaction(ctx, "mallory", msg.ID.Hex(), "+1")
	assert.ErrorIs(t, err, errs.ErrNotRoomMember)

	reacted, err := svc.ToggleReaction(ctx, "bob", msg.ID.Hex(), "+1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, reacted.Reactions["+1"])
	assert.Equal(t, dispatch.ReactionChanged, bus.events[len(bus.events)-1].Type)

	// toggling again removes it
	reacted, err = svc.ToggleReaction(ctx, "bob", msg.ID.Hex(), "+1")
	require.NoError(t, err)
	assert.Empty(t, reacted.Reactions["+1"])
}

func TestMarkReadNotifiesPeer(t *testing.T) {
	svc, _, _, notifier, ledger := newTestService()
	conv := model.DMConversationID("alice", "bob")

	modified, err := svc.MarkRead(context.Background(), "bob", conv, model.ConversationTypeDM, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)
	assert.Equal(t, []string{"bob|" + conv}, ledger.marked)
	assert.Equal(t, []string{"bob|" + conv + "|alice"}, notifier.receipts)
}

func TestBusFailureDoesNotFailSend(t *testing.T) {
	svc, repo, bus, _, _ := newTestService()
	bus.fail = true

	msg, err := svc.SendDM(context.Background(), "alice", "bob", "hello")
	require.NoError(t, err, "the write is committed even when fan-out is unavailable")
	assert.Contains(t, repo.msgs, msg.ID.Hex())
}
