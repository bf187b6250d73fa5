package dispatch

import (
	"encoding/json"
	"time"

	"teamchat/module/messaging/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EventType names one committed domain change.
type EventType string

const (
	MessageSent            EventType = "MessageSent"
	MessageEdited          EventType = "MessageEdited"
	MessageDeleted         EventType = "MessageDeleted"
	ReactionChanged        EventType = "ReactionChanged"
	GroupMembershipChanged EventType = "GroupMembershipChanged"
	TaskMutated            EventType = "TaskMutated"
	StatusChanged          EventType = "StatusChanged"
)

// Event is the unit the dispatcher consumes. It describes a change that
// is already durable; dispatching it can only fan out, never fail the
// original write.
type Event struct {
	ID               string    `json:"id"`
	Type             EventType `json:"type"`
	OrgID            string    `json:"org_id,omitempty"`
	ConversationID   string    `json:"conversation_id,omitempty"`
	ConversationType string    `json:"conversation_type,omitempty"` // dm | group
	GroupID          string    `json:"group_id,omitempty"`
	GroupName        string    `json:"group_name,omitempty"`
	TaskID           string    `json:"task_id,omitempty"`
	SenderID         string    `json:"sender_id,omitempty"`
	PeerID           string    `json:"peer_id,omitempty"`    // dm receiver
	SubjectID        string    `json:"subject_id,omitempty"` // presence subject

	Message  *model.Message        `json:"message,omitempty"`
	Presence *model.PresenceRecord `json:"presence,omitempty"`
	Added    []string              `json:"added,omitempty"`
	Removed  []string              `json:"removed,omitempty"`

	CommittedAt time.Time `json:"committed_at"`
}

func NewEvent(t EventType) Event {
	return Event{ID: uuid.NewString(), Type: t, CommittedAt: time.Now()}
}

// PartitionKey routes the event on the bus. Everything about one
// conversation shares a key, so a hash partitioner keeps per-conversation
// order end to end.
func (e *Event) PartitionKey() string {
	switch {
	case e.ConversationID != "":
		return e.ConversationID
	case e.TaskID != "":
		return "task:" + e.TaskID
	case e.GroupID != "":
		return "group:" + e.GroupID
	case e.SubjectID != "":
		return "user:" + e.SubjectID
	}
	return e.ID
}

func (e *Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	return raw, errors.Wrap(err, "encode event")
}

func DecodeEvent(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	return e, nil
}
