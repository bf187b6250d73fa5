package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationSummary is the unified-inbox projection: one row per
// (user, conversation), covering both DMs and groups. UnreadCount on this
// document is the authoritative unread counter; every mutation goes through
// atomic $inc / $set at the storage layer.
type ConversationSummary struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID             string             `bson:"user_id" json:"user_id"`
	ConversationID     string             `bson:"conversation_id" json:"conversation_id"`
	Type               string             `bson:"type" json:"type"` // dm | group
	Name               string             `bson:"name,omitempty" json:"name,omitempty"`
	Image              string             `bson:"image,omitempty" json:"image,omitempty"`
	OtherUserID        string             `bson:"other_user_id,omitempty" json:"other_user_id,omitempty"` // dm only
	GroupID            string             `bson:"group_id,omitempty" json:"group_id,omitempty"`           // group only
	LastMessageContent string             `bson:"last_message_content,omitempty" json:"last_message_content,omitempty"`
	LastMessageAt      time.Time          `bson:"last_message_at,omitempty" json:"last_message_at"`
	UnreadCount        int64              `bson:"unread_count" json:"unread_count"`
	UpdatedAt          time.Time          `bson:"updated_at,omitempty" json:"updated_at"`
}

const CollConversationParticipants = "conversation_participants"
