package service

import (
	"context"
	"time"

	"teamchat/module/messaging/model"
	"teamchat/tools/errs"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageStore persists chat messages. The insert is the commit point for
// a send: everything after it (fan-out, counters) is projection work.
type MessageStore struct {
	Messages *mongo.Collection
}

func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{Messages: db.Collection(model.CollMessages)}
}

func (s *MessageStore) Insert(ctx context.Context, msg *model.Message) error {
	res, err := s.Messages.InsertOne(ctx, msg)
	if err != nil {
		return errors.Wrap(err, "insert message")
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}
	return nil
}

func (s *MessageStore) Get(ctx context.Context, id string) (*model.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrMessageNotFound.WithDetail(id)
	}
	var msg model.Message
	err = s.Messages.FindOne(ctx, bson.M{"_id": oid, "deleted": bson.M{"$ne": true}}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrMessageNotFound.WithDetail(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get message")
	}
	return &msg, nil
}

// UpdateContent rewrites the body. The sender filter makes ownership part
// of the atomic update, not a separate check.
func (s *MessageStore) UpdateContent(ctx context.Context, id, senderID, content string, at time.Time) (*model.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrMessageNotFound.WithDetail(id)
	}
	var msg model.Message
	err = s.Messages.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "sender_id": senderID, "deleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"content": content, "edited_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.ownershipError(ctx, oid)
	}
	if err != nil {
		return nil, errors.Wrap(err, "edit message")
	}
	return &msg, nil
}

// MarkDeleted is a soft delete; the document stays for receipts and
// audits but stops being served.
func (s *MessageStore) MarkDeleted(ctx context.Context, id, senderID string) (*model.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrMessageNotFound.WithDetail(id)
	}
	var msg model.Message
	err = s.Messages.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "sender_id": senderID, "deleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"deleted": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.ownershipError(ctx, oid)
	}
	if err != nil {
		return nil, errors.Wrap(err, "delete message")
	}
	return &msg, nil
}

// ToggleReaction adds the user's reaction when absent, removes it when
// present. Two conditional updates keep the toggle atomic per branch.
func (s *MessageStore) ToggleReaction(ctx context.Context, id, emoji, userID string) (*model.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrMessageNotFound.WithDetail(id)
	}
	field := "reactions." + emoji

	res, err := s.Messages.UpdateOne(ctx,
		bson.M{"_id": oid, "deleted": bson.M{"$ne": true}, field: bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{field: userID}},
	)
	if err != nil {
		return nil, errors.Wrap(err, "add reaction")
	}
	if res.ModifiedCount == 0 {
		_, err = s.Messages.UpdateOne(ctx,
			bson.M{"_id": oid, "deleted": bson.M{"$ne": true}},
			bson.M{"$pull": bson.M{field: userID}},
		)
		if err != nil {
			return nil, errors.Wrap(err, "remove reaction")
		}
	}
	return s.Get(ctx, id)
}

// History pages backwards from `before` and returns the page in
// chronological order.
func (s *MessageStore) History(ctx context.Context, conversationID string, before time.Time, limit int64) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"conversation_id": conversationID, "deleted": bson.M{"$ne": true}}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	cur, err := s.Messages.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, errors.Wrap(err, "history")
	}
	defer cur.Close(ctx)

	var out []model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ownershipError distinguishes "no such message" from "not yours".
func (s *MessageStore) ownershipError(ctx context.Context, oid primitive.ObjectID) error {
	n, err := s.Messages.CountDocuments(ctx, bson.M{"_id": oid, "deleted": bson.M{"$ne": true}})
	if err == nil && n > 0 {
		return errs.ErrNotMessageOwner
	}
	return errs.ErrMessageNotFound.WithDetail(oid.Hex())
}
