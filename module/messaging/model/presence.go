package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PresenceRecord is the durable per-user status document. Created lazily on
// the first transition, never deleted. LastSeen is monotonically
// non-decreasing: updates are guarded by $max on UpdatedAt so a register
// racing a stale-sweep resolves last-timestamp-wins.
type PresenceRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID    string             `bson:"user_id" json:"user_id"`
	IsOnline  bool               `bson:"is_online" json:"is_online"`
	LastSeen  time.Time          `bson:"last_seen" json:"last_seen"`
	UpdatedAt time.Time          `bson:"updated_at" json:"-"`
}

const CollUserStatuses = "user_statuses"
