package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupChat roster document. Member order is insertion order and is
// preserved by the resolver. Inactive groups resolve to an empty audience.
type GroupChat struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	OrganizationID string             `bson:"organization_id"`
	Name           string             `bson:"name"`
	Description    string             `bson:"description,omitempty"`
	CreatedBy      string             `bson:"created_by"`
	Members        []string           `bson:"members"`
	Admins         []string           `bson:"admins"`
	IsActive       bool               `bson:"is_active"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

const CollGroupChats = "group_chats"
