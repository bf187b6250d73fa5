package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task carries the two recipient lists the resolver unions for task rooms.
type Task struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	OrganizationID string             `bson:"organization_id"`
	Title          string             `bson:"title"`
	Status         string             `bson:"status"`
	Assignees      []string           `bson:"assignees"`
	Watchers       []string           `bson:"watchers"`
	CreatedBy      string             `bson:"created_by,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

const CollTasks = "tasks"
