package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is the authoritative chat record. ReadBy/ReadTimestamps are the
// group "seen" projection maintained by mark-read; the unread counter on the
// conversation summary stays authoritative.
type Message struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ConversationID string               `bson:"conversation_id" json:"conversation_id"`
	OrganizationID string               `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	SenderID       string               `bson:"sender_id" json:"sender_id"`
	ReceiverID     string               `bson:"receiver_id,omitempty" json:"receiver_id,omitempty"` // dm only
	GroupID        string               `bson:"group_id,omitempty" json:"group_id,omitempty"`       // group only
	Content        string               `bson:"content" json:"content"`
	CreatedAt      time.Time            `bson:"created_at" json:"created_at"`
	EditedAt       *time.Time           `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	Deleted        bool                 `bson:"deleted,omitempty" json:"deleted,omitempty"`
	Reactions      map[string][]string  `bson:"reactions,omitempty" json:"reactions,omitempty"` // emoji -> user ids
	ReadBy         []string             `bson:"read_by,omitempty" json:"read_by,omitempty"`
	ReadTimestamps map[string]time.Time `bson:"read_timestamps,omitempty" json:"read_timestamps,omitempty"`
}

const CollMessages = "messages"
