package realtime

import (
	"encoding/json"
	"time"

	"teamchat/logger"
	"teamchat/module/messaging/model"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Server-to-client frame types.
const (
	FrameNewMessage      = "new_message"
	FrameMessageEdited   = "message_edited"
	FrameMessageDeleted  = "message_deleted"
	FrameReactionChanged = "reaction_changed"
	FramePresence        = "presence"
	FrameListChanged     = "conversation_list_changed"
	FrameTyping          = "typing"
	FrameMessagesRead    = "messages_read"
	FrameTaskUpdated     = "task_updated"
	FrameGroupMembership = "group_membership_changed"
	FrameJoinedRoom      = "joined_room"
	FrameMessageAck      = "message_ack"
	FramePong            = "pong"
	FrameError           = "error"
)

// Client-to-server frame types.
const (
	ClientFrameSend     = "send_message"
	ClientFrameJoinRoom = "join_room"
	ClientFrameTyping   = "typing"
	ClientFrameMarkRead = "mark_read"
	ClientFramePing     = "ping"
)

// Frame is the wire envelope for every server push.
type Frame struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
	Data any    `json:"data,omitempty"`
}

// Encode marshals one outbound frame. Data must be a plain struct or map.
func Encode(frameType string, data any) []byte {
	payload, err := json.Marshal(Frame{Type: frameType, Ts: time.Now().UnixMilli(), Data: data})
	if err != nil {
		logger.Errorf("[frames] marshal %s failed: %v", frameType, err)
		return nil
	}
	return payload
}

// ---- outbound frame builders ----

func BuildNewMessage(msg *model.Message) []byte {
	return Encode(FrameNewMessage, map[string]any{
		"id":              msg.ID.Hex(),
		"conversation_id": msg.ConversationID,
		"sender_id":       msg.SenderID,
		"receiver_id":     msg.ReceiverID,
		"group_id":        msg.GroupID,
		"content":         msg.Content,
		"created_at":      msg.CreatedAt,
	})
}

func BuildMessageEdited(id, conversationID, content string, editedAt time.Time) []byte {
	return Encode(FrameMessageEdited, map[string]any{
		"id":              id,
		"conversation_id": conversationID,
		"content":         content,
		"edited_at":       editedAt,
	})
}

func BuildMessageDeleted(id, conversationID string) []byte {
	return Encode(FrameMessageDeleted, map[string]any{
		"id":              id,
		"conversation_id": conversationID,
	})
}

func BuildReactionChanged(id, conversationID string, reactions map[string][]string) []byte {
	return Encode(FrameReactionChanged, map[string]any{
		"id":              id,
		"conversation_id": conversationID,
		"reactions":       reactions,
	})
}

func BuildPresence(rec model.PresenceRecord) []byte {
	return Encode(FramePresence, map[string]any{
		"user_id":   rec.UserID,
		"is_online": rec.IsOnline,
		"last_seen": rec.LastSeen,
	})
}

// BuildListChanged is a pure invalidation signal, no payload body.
func BuildListChanged() []byte {
	return Encode(FrameListChanged, map[string]any{})
}

func BuildTyping(senderID, conversationID string) []byte {
	return Encode(FrameTyping, map[string]any{
		"sender_id":       senderID,
		"conversation_id": conversationID,
	})
}

func BuildMessagesRead(conversationID, readerID string, at time.Time) []byte {
	return Encode(FrameMessagesRead, map[string]any{
		"conversation_id": conversationID,
		"reader_id":       readerID,
		"read_at":         at,
	})
}

func BuildTaskUpdated(taskID, actorID string) []byte {
	return Encode(FrameTaskUpdated, map[string]any{
		"task_id":  taskID,
		"actor_id": actorID,
	})
}

func BuildGroupMembership(groupID string, added, removed []string) []byte {
	return Encode(FrameGroupMembership, map[string]any{
		"group_id": groupID,
		"added":    added,
		"removed":  removed,
	})
}

func BuildJoinedRoom(room string) []byte {
	return Encode(FrameJoinedRoom, map[string]any{"room": room})
}

// BuildMessageAck confirms a websocket send back to the sender only; the
// broadcast to the rest of the audience stays with the dispatcher.
func BuildMessageAck(msg *model.Message) []byte {
	return Encode(FrameMessageAck, map[string]any{
		"id":              msg.ID.Hex(),
		"conversation_id": msg.ConversationID,
		"created_at":      msg.CreatedAt,
	})
}

func BuildPong() []byte {
	return Encode(FramePong, nil)
}

func BuildError(code int, msg string) []byte {
	return Encode(FrameError, map[string]any{"code": code, "message": msg})
}

// ---- inbound frames ----

// ClientFrame is one decoded client request. Data is decoded per type
// with DecodePayload.
type ClientFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func ParseClientFrame(raw []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse client frame")
	}
	if f.Type == "" {
		return nil, errors.New("client frame missing type")
	}
	return &f, nil
}

// DecodePayload maps a frame's loose data object onto a typed payload.
func DecodePayload[T any](f *ClientFrame) (*T, error) {
	var out T
	if err := mapstructure.Decode(f.Data, &out); err != nil {
		return nil, errors.Wrapf(err, "decode %s payload", f.Type)
	}
	return &out, nil
}

// SendMessagePayload starts a DM or group send.
type SendMessagePayload struct {
	ReceiverID string `mapstructure:"receiver_id"`
	GroupID    string `mapstructure:"group_id"`
	Content    string `mapstructure:"content"`
}

type JoinRoomPayload struct {
	Room string `mapstructure:"room"`
}

type TypingPayload struct {
	ReceiverID string `mapstructure:"receiver_id"` // dm
	GroupID    string `mapstructure:"group_id"`    // group
}

type MarkReadPayload struct {
	ConversationID string `mapstructure:"conversation_id"`
	Type           string `mapstructure:"type"`
	PeerID         string `mapstructure:"peer_id"` // dm only
}
