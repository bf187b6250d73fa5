package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Organization is the tenant boundary. Every user belongs to exactly one
// organization here; org rooms fan presence out to the whole roster.
type Organization struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Members   []string           `bson:"members"`
	CreatedBy string             `bson:"created_by,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`
}

const CollOrganizations = "organizations"
