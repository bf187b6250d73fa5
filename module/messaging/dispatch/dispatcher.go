package dispatch

import (
	"context"
	"time"

	"teamchat/logger"
	"teamchat/module/messaging/model"
	"teamchat/module/messaging/unread"
	"teamchat/service/realtime"
	"teamchat/tools/errs"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Gateway is the live-session surface the dispatcher pushes through.
// realtime.Registry implements it.
type Gateway interface {
	Push(userID string, payload []byte) bool
	PushMany(userIDs []string, payload []byte)
	RevokeRoom(userID, room string)
}

// Audience resolves who should see an event. roster.Resolver implements
// it.
type Audience interface {
	AudienceForDM(a, b string) []string
	AudienceForGroup(ctx context.Context, groupID string) ([]string, error)
	AudienceForTask(ctx context.Context, taskID string) ([]string, error)
	PresenceAudience(ctx context.Context, userID string) ([]string, error)
}

// UnreadSink is the ledger surface the dispatcher drives. *unread.Ledger
// implements it.
type UnreadSink interface {
	RecordMessage(ctx context.Context, in unread.RecordInput) error
	Evict(ctx context.Context, userID, conversationID string) error
}

// PresenceTracker records presence transitions. *presence.Tracker
// implements it.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string) (model.PresenceRecord, bool, error)
	SetOffline(ctx context.Context, userID string) (model.PresenceRecord, bool, error)
}

// Dispatcher fans committed domain events out to live sessions and keeps
// the unread ledger and presence tracker in step. Handle must be driven
// by a single consumer goroutine per partition; the bus keys events by
// conversation, which is what preserves per-conversation delivery order.
//
// A recipient without a live session is dropped, never queued. Clients
// resynchronize from the list and history endpoints on reconnect.
type Dispatcher struct {
	gw      Gateway
	aud     Audience
	sink    UnreadSink
	tracker PresenceTracker
}

func NewDispatcher(gw Gateway, aud Audience, sink UnreadSink, tracker PresenceTracker) *Dispatcher {
	return &Dispatcher{gw: gw, aud: aud, sink: sink, tracker: tracker}
}

// Handle applies one event. Per-recipient push failures never abort the
// fan-out loop; only resolver and ledger errors propagate.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case MessageSent:
		return d.handleMessageSent(ctx, ev)
	case MessageEdited, MessageDeleted, ReactionChanged:
		return d.handleMessageChanged(ctx, ev)
	case GroupMembershipChanged:
		return d.handleMembershipChanged(ctx, ev)
	case TaskMutated:
		return d.handleTaskMutated(ctx, ev)
	case StatusChanged:
		return d.handleStatusChanged(ctx, ev)
	}
	return errs.ErrUnknownEventType.WithDetail(string(ev.Type))
}

func (d *Dispatcher) conversationAudience(ctx context.Context, ev Event) ([]string, error) {
	if ev.ConversationType == model.ConversationTypeGroup {
		return d.aud.AudienceForGroup(ctx, ev.GroupID)
	}
	return d.aud.AudienceForDM(ev.SenderID, ev.PeerID), nil
}

func (d *Dispatcher) handleMessageSent(ctx context.Context, ev Event) error {
	if ev.Message == nil {
		return errs.ErrUnknownEventType.WithDetail(string(ev.Type) + " without message body")
	}
	audience, err := d.conversationAudience(ctx, ev)
	if err != nil {
		return err
	}

	in := unread.RecordInput{
		ConversationID: ev.ConversationID,
		Type:           ev.ConversationType,
		GroupID:        ev.GroupID,
		GroupName:      ev.GroupName,
		SenderID:       ev.SenderID,
		Snippet:        ev.Message.Content,
		SentAt:         ev.Message.CreatedAt,
	}
	for _, member := range audience {
		p := unread.Participant{UserID: member}
		if ev.ConversationType == model.ConversationTypeDM {
			p.OtherUserID = other(ev.SenderID, ev.PeerID, member)
		}
		in.Participants = append(in.Participants, p)
	}
	if err := d.sink.RecordMessage(ctx, in); err != nil {
		return err
	}

	payload := realtime.BuildNewMessage(ev.Message)
	for _, member := range audience {
		if member == ev.SenderID {
			continue // the sender sees their own send locally
		}
		d.gw.Push(member, payload)
	}
	// second signal: coarse invalidation for list views, sender included
	d.gw.PushMany(audience, realtime.BuildListChanged())
	return nil
}

func (d *Dispatcher) handleMessageChanged(ctx context.Context, ev Event) error {
	if ev.Message == nil {
		return errs.ErrUnknownEventType.WithDetail(string(ev.Type) + " without message body")
	}
	audience, err := d.conversationAudience(ctx, ev)
	if err != nil {
		return err
	}

	var payload []byte
	listChanged := true
	switch ev.Type {
	case MessageEdited:
		// events published by older nodes may lack the edit stamp
		editedAt := ev.CommittedAt
		if ev.Message.EditedAt != nil {
			editedAt = *ev.Message.EditedAt
		}
		payload = realtime.BuildMessageEdited(ev.Message.ID.Hex(), ev.ConversationID, ev.Message.Content, editedAt)
	case MessageDeleted:
		payload = realtime.BuildMessageDeleted(ev.Message.ID.Hex(), ev.ConversationID)
	case ReactionChanged:
		payload = realtime.BuildReactionChanged(ev.Message.ID.Hex(), ev.ConversationID, ev.Message.Reactions)
		listChanged = false // reactions do not touch snippets or counters
	}

	d.gw.PushMany(audience, payload)
	if listChanged {
		d.gw.PushMany(audience, realtime.BuildListChanged())
	}
	return nil
}

func (d *Dispatcher) handleMembershipChanged(ctx context.Context, ev Event) error {
	for _, user := range ev.Removed {
		if err := d.sink.Evict(ctx, user, ev.GroupID); err != nil {
			logger.Error("evict removed member failed",
				zap.String("user", user), zap.String("group", ev.GroupID), zap.Error(err))
		}
		// a live session loses the room immediately, not at next reconnect
		d.gw.RevokeRoom(user, model.RoomGroup(ev.GroupID))
	}

	members, err := d.aud.AudienceForGroup(ctx, ev.GroupID)
	if err != nil {
		return err
	}
	audience := lo.Uniq(append(append(members, ev.Added...), ev.Removed...))

	d.gw.PushMany(audience, realtime.BuildGroupMembership(ev.GroupID, ev.Added, ev.Removed))
	d.gw.PushMany(audience, realtime.BuildListChanged())
	return nil
}

func (d *Dispatcher) handleTaskMutated(ctx context.Context, ev Event) error {
	audience, err := d.aud.AudienceForTask(ctx, ev.TaskID)
	if err != nil {
		return err
	}
	d.gw.PushMany(audience, realtime.BuildTaskUpdated(ev.TaskID, ev.SenderID))
	return nil
}

func (d *Dispatcher) handleStatusChanged(ctx context.Context, ev Event) error {
	if ev.Presence == nil {
		return errs.ErrUnknownEventType.WithDetail("StatusChanged without presence body")
	}
	return d.broadcastPresence(ctx, *ev.Presence)
}

func (d *Dispatcher) broadcastPresence(ctx context.Context, rec model.PresenceRecord) error {
	audience, err := d.aud.PresenceAudience(ctx, rec.UserID)
	if err != nil {
		return err
	}
	// the subject never receives their own transition
	audience = lo.Without(audience, rec.UserID)
	d.gw.PushMany(audience, realtime.BuildPresence(rec))
	return nil
}

// BroadcastPresence publishes an already-recorded transition, e.g. the
// flips reported by the stale sweep.
func (d *Dispatcher) BroadcastPresence(ctx context.Context, rec model.PresenceRecord) {
	if err := d.broadcastPresence(ctx, rec); err != nil {
		logger.Error("presence broadcast failed", zap.String("user", rec.UserID), zap.Error(err))
	}
}

// UserOnline implements realtime.PresenceEvents. Broadcasts only when the
// online flag actually flipped, so reconnects stay silent.
func (d *Dispatcher) UserOnline(ctx context.Context, userID string) {
	rec, changed, err := d.tracker.SetOnline(ctx, userID)
	if err != nil {
		logger.Error("record online failed", zap.String("user", userID), zap.Error(err))
		return
	}
	if changed {
		d.BroadcastPresence(ctx, rec)
	}
}

// UserOffline implements realtime.PresenceEvents.
func (d *Dispatcher) UserOffline(ctx context.Context, userID string) {
	rec, changed, err := d.tracker.SetOffline(ctx, userID)
	if err != nil {
		logger.Error("record offline failed", zap.String("user", userID), zap.Error(err))
		return
	}
	if changed {
		d.BroadcastPresence(ctx, rec)
	}
}

// RelayTyping forwards an ephemeral typing signal. Nothing is persisted
// and the unread ledger is never touched.
func (d *Dispatcher) RelayTyping(ctx context.Context, senderID, receiverID, groupID string) error {
	if groupID != "" {
		audience, err := d.aud.AudienceForGroup(ctx, groupID)
		if err != nil {
			return err
		}
		payload := realtime.BuildTyping(senderID, groupID)
		for _, member := range audience {
			if member == senderID {
				continue
			}
			d.gw.Push(member, payload)
		}
		return nil
	}
	conv := model.DMConversationID(senderID, receiverID)
	d.gw.Push(receiverID, realtime.BuildTyping(senderID, conv))
	return nil
}

// NotifyRead tells the other side of a conversation that the reader
// caught up: the DM peer, or every other group member.
func (d *Dispatcher) NotifyRead(ctx context.Context, readerID, conversationID, convType, peerID string, at time.Time) error {
	payload := realtime.BuildMessagesRead(conversationID, readerID, at)
	if convType == model.ConversationTypeDM {
		d.gw.Push(peerID, payload)
		return nil
	}
	audience, err := d.aud.AudienceForGroup(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, member := range audience {
		if member == readerID {
			continue
		}
		d.gw.Push(member, payload)
	}
	return nil
}

func other(a, b, me string) string {
	if me == a {
		return b
	}
	return a
}
