package unread

import (
	"context"
	"time"

	"teamchat/logger"
	"teamchat/module/messaging/model"

	"go.uber.org/zap"
)

// SummaryUpsert is one participant's slice of a message fan-out write.
type SummaryUpsert struct {
	UserID         string
	ConversationID string
	Type           string // dm | group
	Name           string
	Image          string
	OtherUserID    string
	GroupID        string
	Snippet        string
	LastMessageAt  time.Time
	IncUnread      bool
}

// SummaryStore is the authoritative side of the ledger. *Store implements
// it on mongo; tests use an in-memory fake.
type SummaryStore interface {
	Upsert(ctx context.Context, up SummaryUpsert) error
	ResetUnread(ctx context.Context, userID, conversationID string) (int64, error)
	MarkMessagesRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID, conversationID string) (int64, error)
	ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	Remove(ctx context.Context, userID, conversationID string) error
}

// CounterMirror is the optional redis fast path for unread reads.
type CounterMirror interface {
	Incr(ctx context.Context, user, conv string) (int64, error)
	Reset(ctx context.Context, user, conv string) error
	Get(ctx context.Context, user, conv string) (n int64, ok bool, err error)
	Set(ctx context.Context, user, conv string, n int64) error
	Drop(ctx context.Context, user, conv string) error
}

// Participant describes one member of a conversation for fan-out writes.
type Participant struct {
	UserID      string
	DisplayName string
	Image       string
	OtherUserID string // dm: the peer as seen from this participant
}

// RecordInput carries everything RecordMessage needs for one committed
// message.
type RecordInput struct {
	ConversationID string
	Type           string // dm | group
	GroupID        string
	GroupName      string
	SenderID       string
	Participants   []Participant
	Snippet        string
	SentAt         time.Time
}

// Ledger owns unread counters, read cursors and the inbox projection.
// The counter on the summary document is the single source of truth; the
// redis mirror and the per-message read_by sets are projections that every
// mutation path keeps in step.
type Ledger struct {
	store  SummaryStore
	mirror CounterMirror // may be nil
	clock  func() time.Time
}

func NewLedger(store SummaryStore, mirror CounterMirror) *Ledger {
	return &Ledger{store: store, mirror: mirror, clock: time.Now}
}

// WithClock injects a deterministic clock for tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// RecordMessage applies one committed message to every participant's
// summary: non-senders get unread_count incremented by exactly one,
// the sender's row is refreshed with unread forced to zero.
func (l *Ledger) RecordMessage(ctx context.Context, in RecordInput) error {
	for _, p := range in.Participants {
		isSender := p.UserID == in.SenderID

		name := p.DisplayName
		if in.Type == model.ConversationTypeGroup && in.GroupName != "" {
			name = in.GroupName
		}
		up := SummaryUpsert{
			UserID:         p.UserID,
			ConversationID: in.ConversationID,
			Type:           in.Type,
			Name:           name,
			Image:          p.Image,
			OtherUserID:    p.OtherUserID,
			GroupID:        in.GroupID,
			Snippet:        in.Snippet,
			LastMessageAt:  in.SentAt,
			IncUnread:      !isSender,
		}
		if err := l.store.Upsert(ctx, up); err != nil {
			return err
		}

		if l.mirror == nil {
			continue
		}
		// mirror failures degrade reads to the authoritative store only
		if isSender {
			if err := l.mirror.Reset(ctx, p.UserID, in.ConversationID); err != nil {
				logger.Warn("unread mirror reset failed", zap.String("user", p.UserID), zap.Error(err))
			}
		} else {
			if _, err := l.mirror.Incr(ctx, p.UserID, in.ConversationID); err != nil {
				logger.Warn("unread mirror incr failed", zap.String("user", p.UserID), zap.Error(err))
			}
		}
	}
	return nil
}

// MarkRead resets the reader's counter and, for groups, appends the reader
// to each unread message's read_by set. The per-message updates are applied
// independently, so MarkRead is re-entrant rather than transactional: a
// second call after a partial failure converges the state. The returned
// count is the number of documents actually modified and may be zero on a
// repeat call.
func (l *Ledger) MarkRead(ctx context.Context, userID, conversationID, convType string) (int64, error) {
	modified, err := l.store.ResetUnread(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}
	if l.mirror != nil {
		if err := l.mirror.Reset(ctx, userID, conversationID); err != nil {
			logger.Warn("unread mirror reset failed", zap.String("user", userID), zap.Error(err))
		}
	}

	if convType == model.ConversationTypeGroup {
		n, err := l.store.MarkMessagesRead(ctx, conversationID, userID, l.clock())
		if err != nil {
			// counter already reset; receipts converge on retry
			return modified, err
		}
		return n, nil
	}
	return modified, nil
}

// UnreadCount serves the point read from the mirror when possible and
// lazily backfills it from the authoritative counter otherwise.
func (l *Ledger) UnreadCount(ctx context.Context, userID, conversationID string) (int64, error) {
	if l.mirror != nil {
		if n, ok, err := l.mirror.Get(ctx, userID, conversationID); err == nil && ok {
			return n, nil
		}
	}
	n, err := l.store.UnreadCount(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}
	if l.mirror != nil {
		if err := l.mirror.Set(ctx, userID, conversationID, n); err != nil {
			logger.Warn("unread mirror backfill failed", zap.String("user", userID), zap.Error(err))
		}
	}
	return n, nil
}

// Conversations returns the unified inbox for a user.
func (l *Ledger) Conversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	return l.store.ListForUser(ctx, userID)
}

// Evict drops a user's summary row and mirror entry after a membership
// removal.
func (l *Ledger) Evict(ctx context.Context, userID, conversationID string) error {
	if err := l.store.Remove(ctx, userID, conversationID); err != nil {
		return err
	}
	if l.mirror != nil {
		if err := l.mirror.Drop(ctx, userID, conversationID); err != nil {
			logger.Warn("unread mirror drop failed", zap.String("user", userID), zap.Error(err))
		}
	}
	return nil
}
