package service

import (
	"context"
	"time"

	"teamchat/logger"
	"teamchat/module/messaging/dispatch"
	"teamchat/module/messaging/model"
	"teamchat/tools/errs"

	"go.uber.org/zap"
)

// MessageRepo is the message persistence surface. *MessageStore
// implements it on mongo.
type MessageRepo interface {
	Insert(ctx context.Context, msg *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	UpdateContent(ctx context.Context, id, senderID, content string, at time.Time) (*model.Message, error)
	MarkDeleted(ctx context.Context, id, senderID string) (*model.Message, error)
	ToggleReaction(ctx context.Context, id, emoji, userID string) (*model.Message, error)
	History(ctx context.Context, conversationID string, before time.Time, limit int64) ([]model.Message, error)
}

// Access gates sends and reads on current membership. roster.Resolver
// implements it.
type Access interface {
	Authorize(ctx context.Context, userID, room string) (bool, error)
	OrgOf(ctx context.Context, userID string) (string, error)
}

// GroupMeta names groups for summary rows. roster.Store implements it.
type GroupMeta interface {
	GroupName(ctx context.Context, groupID string) (string, error)
}

// ReadLedger is the unread surface. *unread.Ledger implements it.
type ReadLedger interface {
	MarkRead(ctx context.Context, userID, conversationID, convType string) (int64, error)
	UnreadCount(ctx context.Context, userID, conversationID string) (int64, error)
	Conversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
}

// Publisher hands committed events to the bus.
type Publisher interface {
	Publish(ctx context.Context, ev dispatch.Event) error
}

// ReadNotifier pushes read receipts to live sessions. *dispatch.Dispatcher
// implements it.
type ReadNotifier interface {
	NotifyRead(ctx context.Context, readerID, conversationID, convType, peerID string, at time.Time) error
}

// MessageService owns the message write path. An insert is the commit
// point; everything downstream travels as an event, so a bus hiccup can
// lose a push but never a message.
type MessageService struct {
	repo   MessageRepo
	access Access
	meta   GroupMeta
	ledger ReadLedger
	bus    Publisher
	notify ReadNotifier
	clock  func() time.Time
}

func NewMessageService(repo MessageRepo, access Access, meta GroupMeta, ledger ReadLedger, bus Publisher, notify ReadNotifier) *MessageService {
	return &MessageService{
		repo: repo, access: access, meta: meta,
		ledger: ledger, bus: bus, notify: notify,
		clock: time.Now,
	}
}

// WithClock injects a deterministic clock for tests.
func (s *MessageService) WithClock(clock func() time.Time) *MessageService {
	s.clock = clock
	return s
}

// SendDM commits a direct message and publishes its event.
func (s *MessageService) SendDM(ctx context.Context, senderID, receiverID, content string) (*model.Message, error) {
	org, err := s.access.OrgOf(ctx, senderID)
	if err != nil {
		return nil, err
	}
	msg := &model.Message{
		ConversationID: model.DMConversationID(senderID, receiverID),
		OrganizationID: org,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		CreatedAt:      s.clock(),
	}
	if err := s.repo.Insert(ctx, msg); err != nil {
		return nil, err
	}
	s.publish(ctx, s.messageEvent(dispatch.MessageSent, msg, ""))
	return msg, nil
}

// SendGroupMessage commits a group message. Non-members are rejected
// before anything is written.
func (s *MessageService) SendGroupMessage(ctx context.Context, senderID, groupID, content string) (*model.Message, error) {
	ok, err := s.access.Authorize(ctx, senderID, model.RoomGroup(groupID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotRoomMember.WithDetail(model.RoomGroup(groupID))
	}

	org, err := s.access.OrgOf(ctx, senderID)
	if err != nil {
		return nil, err
	}
	groupName, err := s.meta.GroupName(ctx, groupID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ConversationID: groupID,
		OrganizationID: org,
		SenderID:       senderID,
		GroupID:        groupID,
		Content:        content,
		CreatedAt:      s.clock(),
	}
	if err := s.repo.Insert(ctx, msg); err != nil {
		return nil, err
	}
	s.publish(ctx, s.messageEvent(dispatch.MessageSent, msg, groupName))
	return msg, nil
}

// EditMessage rewrites a message the caller sent.
func (s *MessageService) EditMessage(ctx context.Context, userID, messageID, content string) (*model.Message, error) {
	msg, err := s.repo.UpdateContent(ctx, messageID, userID, content, s.clock())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.messageEvent(dispatch.MessageEdited, msg, ""))
	return msg, nil
}

// DeleteMessage soft-deletes a message the caller sent.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.repo.MarkDeleted(ctx, messageID, userID)
	if err != nil {
		return err
	}
	s.publish(ctx, s.messageEvent(dispatch.MessageDeleted, msg, ""))
	return nil
}

// ToggleReaction flips the caller's reaction on a message they can see.
func (s *MessageService) ToggleReaction(ctx context.Context, userID, messageID, emoji string) (*model.Message, error) {
	msg, err := s.repo.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeConversation(ctx, userID, msg); err != nil {
		return nil, err
	}

	msg, err = s.repo.ToggleReaction(ctx, messageID, emoji, userID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.messageEvent(dispatch.ReactionChanged, msg, ""))
	return msg, nil
}

// DMHistory pages a direct conversation backwards from `before`.
func (s *MessageService) DMHistory(ctx context.Context, userID, peerID string, before time.Time, limit int64) ([]model.Message, error) {
	return s.repo.History(ctx, model.DMConversationID(userID, peerID), before, limit)
}

// GroupHistory pages a group conversation; members only.
func (s *MessageService) GroupHistory(ctx context.Context, userID, groupID string, before time.Time, limit int64) ([]model.Message, error) {
	ok, err := s.access.Authorize(ctx, userID, model.RoomGroup(groupID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotRoomMember.WithDetail(model.RoomGroup(groupID))
	}
	return s.repo.History(ctx, groupID, before, limit)
}

// MarkRead zeroes the caller's counter and tells the other side. Safe to
// repeat.
func (s *MessageService) MarkRead(ctx context.Context, userID, conversationID, convType, peerID string) (int64, error) {
	modified, err := s.ledger.MarkRead(ctx, userID, conversationID, convType)
	if err != nil {
		return 0, err
	}
	if s.notify != nil {
		if err := s.notify.NotifyRead(ctx, userID, conversationID, convType, peerID, s.clock()); err != nil {
			logger.Warn("read receipt push failed",
				zap.String("user", userID), zap.String("conversation", conversationID), zap.Error(err))
		}
	}
	return modified, nil
}

// Conversations returns the caller's unified inbox.
func (s *MessageService) Conversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	return s.ledger.Conversations(ctx, userID)
}

// UnreadCount returns one counter.
func (s *MessageService) UnreadCount(ctx context.Context, userID, conversationID string) (int64, error) {
	return s.ledger.UnreadCount(ctx, userID, conversationID)
}

func (s *MessageService) authorizeConversation(ctx context.Context, userID string, msg *model.Message) error {
	if msg.GroupID != "" {
		ok, err := s.access.Authorize(ctx, userID, model.RoomGroup(msg.GroupID))
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrNotRoomMember.WithDetail(model.RoomGroup(msg.GroupID))
		}
		return nil
	}
	if userID != msg.SenderID && userID != msg.ReceiverID {
		return errs.ErrNotRoomMember.WithDetail(msg.ConversationID)
	}
	return nil
}

func (s *MessageService) messageEvent(t dispatch.EventType, msg *model.Message, groupName string) dispatch.Event {
	ev := dispatch.NewEvent(t)
	ev.ConversationID = msg.ConversationID
	ev.OrgID = msg.OrganizationID
	ev.SenderID = msg.SenderID
	ev.Message = msg
	if msg.GroupID != "" {
		ev.ConversationType = model.ConversationTypeGroup
		ev.GroupID = msg.GroupID
		ev.GroupName = groupName
	} else {
		ev.ConversationType = model.ConversationTypeDM
		ev.PeerID = msg.ReceiverID
	}
	return ev
}

// publish never fails the caller: the write is already durable and
// clients resynchronize on reconnect.
func (s *MessageService) publish(ctx context.Context, ev dispatch.Event) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		logger.Error("event publish failed",
			zap.String("type", string(ev.Type)), zap.String("key", ev.PartitionKey()), zap.Error(err))
	}
}
