package unread

import (
	"context"
	"time"

	"teamchat/module/messaging/model"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store holds the mongo collections behind the ledger.
type Store struct {
	Summaries *mongo.Collection
	Messages  *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		Summaries: db.Collection(model.CollConversationParticipants),
		Messages:  db.Collection(model.CollMessages),
	}
}

// Upsert writes one participant's summary row for a new message.
// IncUnread drives the single most safety-critical write in the system:
// the counter moves only via $inc, an atomic fetch-and-increment at the
// storage layer, so concurrent sends into the same conversation can never
// lose an update.
func (s *Store) Upsert(ctx context.Context, up SummaryUpsert) error {
	set := bson.M{
		"user_id":              up.UserID,
		"conversation_id":      up.ConversationID,
		"type":                 up.Type,
		"last_message_content": up.Snippet,
		"last_message_at":      up.LastMessageAt,
		"updated_at":           time.Now(),
	}
	if up.Name != "" {
		set["name"] = up.Name
	}
	if up.Image != "" {
		set["image"] = up.Image
	}
	if up.OtherUserID != "" {
		set["other_user_id"] = up.OtherUserID
	}
	if up.GroupID != "" {
		set["group_id"] = up.GroupID
	}

	update := bson.M{"$set": set}
	if up.IncUnread {
		update["$inc"] = bson.M{"unread_count": 1}
	} else {
		set["unread_count"] = int64(0)
	}

	_, err := s.Summaries.UpdateOne(ctx,
		bson.M{"user_id": up.UserID, "conversation_id": up.ConversationID},
		update,
		options.Update().SetUpsert(true),
	)
	return errors.Wrap(err, "upsert summary")
}

// ResetUnread zeroes the counter. Matching an already-zero row is fine;
// the operation is re-entrant by construction.
func (s *Store) ResetUnread(ctx context.Context, userID, conversationID string) (int64, error) {
	res, err := s.Summaries.UpdateOne(ctx,
		bson.M{"user_id": userID, "conversation_id": conversationID},
		bson.M{"$set": bson.M{"unread_count": int64(0), "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "reset unread")
	}
	return res.ModifiedCount, nil
}

// MarkMessagesRead appends the reader to read_by and stamps
// read_timestamps on every message of the conversation not yet read by
// them. UpdateMany applies per-document updates independently: a crash
// mid-batch leaves a partially-read state that the next call converges.
func (s *Store) MarkMessagesRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error) {
	res, err := s.Messages.UpdateMany(ctx,
		bson.M{
			"conversation_id": conversationID,
			"sender_id":       bson.M{"$ne": userID},
			"read_by":         bson.M{"$ne": userID},
		},
		bson.M{
			"$addToSet": bson.M{"read_by": userID},
			"$set":      bson.M{"read_timestamps." + userID: at},
		},
	)
	if err != nil {
		return 0, errors.Wrap(err, "mark messages read")
	}
	return res.ModifiedCount, nil
}

func (s *Store) UnreadCount(ctx context.Context, userID, conversationID string) (int64, error) {
	var row model.ConversationSummary
	err := s.Summaries.FindOne(ctx,
		bson.M{"user_id": userID, "conversation_id": conversationID},
	).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "unread count")
	}
	return row.UnreadCount, nil
}

// ListForUser is the unified inbox, most recent conversation first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	cur, err := s.Summaries.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "list summaries")
	}
	defer cur.Close(ctx)

	var out []model.ConversationSummary
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode summaries")
	}
	return out, nil
}

// Remove deletes a participant's summary row, e.g. when they are removed
// from a group.
func (s *Store) Remove(ctx context.Context, userID, conversationID string) error {
	_, err := s.Summaries.DeleteOne(ctx,
		bson.M{"user_id": userID, "conversation_id": conversationID})
	return errors.Wrap(err, "remove summary")
}
