package presence

import (
	"context"
	"time"

	"teamchat/module/messaging/model"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists presence records in the user_statuses collection.
type Store struct {
	Statuses *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{Statuses: db.Collection(model.CollUserStatuses)}
}

// SetStatus applies one presence transition guarded by updated_at: a write
// stamped earlier than the document's current updated_at is silently
// discarded, so a register racing a stale sweep resolves
// last-timestamp-wins. Returns whether is_online actually flipped.
func (s *Store) SetStatus(ctx context.Context, userID string, online bool, at time.Time) (bool, error) {
	// the record is created lazily on the first transition and never deleted
	_, err := s.Statuses.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"user_id":    userID,
			"is_online":  false,
			"last_seen":  time.Time{},
			"updated_at": time.Time{},
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, errors.Wrap(err, "ensure status record")
	}

	var before model.PresenceRecord
	err = s.Statuses.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID, "updated_at": bson.M{"$lt": at}},
		bson.M{"$set": bson.M{"is_online": online, "last_seen": at, "updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// a newer write already landed
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "set status")
	}
	return before.IsOnline != online, nil
}

// MarkOfflineIfStale flips a record offline only while it is still online
// and untouched since cutoff. A register that landed after the stale
// listing moves updated_at past the cutoff and wins the race.
func (s *Store) MarkOfflineIfStale(ctx context.Context, userID string, cutoff, at time.Time) (bool, error) {
	res, err := s.Statuses.UpdateOne(ctx,
		bson.M{"user_id": userID, "is_online": true, "updated_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"is_online": false, "last_seen": at, "updated_at": at}},
	)
	if err != nil {
		return false, errors.Wrap(err, "mark offline if stale")
	}
	return res.ModifiedCount > 0, nil
}

// Get returns the durable record. Users never seen read back as offline
// with zero timestamps.
func (s *Store) Get(ctx context.Context, userID string) (model.PresenceRecord, error) {
	var rec model.PresenceRecord
	err := s.Statuses.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.PresenceRecord{UserID: userID}, nil
	}
	if err != nil {
		return model.PresenceRecord{}, errors.Wrap(err, "get status")
	}
	return rec, nil
}

// ListStaleOnline returns every record still marked online whose last
// update is older than cutoff.
func (s *Store) ListStaleOnline(ctx context.Context, cutoff time.Time) ([]model.PresenceRecord, error) {
	cur, err := s.Statuses.Find(ctx, bson.M{
		"is_online":  true,
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, errors.Wrap(err, "list stale online")
	}
	defer cur.Close(ctx)

	var out []model.PresenceRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode stale online")
	}
	return out, nil
}
