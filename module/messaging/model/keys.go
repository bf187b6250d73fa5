package model

import (
	"sort"
	"strings"
)

// Conversation types.
const (
	ConversationTypeDM    = "dm"
	ConversationTypeGroup = "group"
)

// Room kinds. A room is a logical fan-out target; membership is derived
// from roster data at dispatch time, except ad-hoc task rooms which a
// session joins explicitly.
const (
	RoomKindUser  = "user"
	RoomKindGroup = "group"
	RoomKindOrg   = "org"
	RoomKindTask  = "task"
)

func RoomUser(userID string) string   { return RoomKindUser + ":" + userID }
func RoomGroup(groupID string) string { return RoomKindGroup + ":" + groupID }
func RoomOrg(orgID string) string     { return RoomKindOrg + ":" + orgID }
func RoomTask(taskID string) string   { return RoomKindTask + ":" + taskID }

// ParseRoom splits a room key into kind and entity id.
// ok=false for malformed keys.
func ParseRoom(room string) (kind, id string, ok bool) {
	parts := strings.SplitN(room, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	switch parts[0] {
	case RoomKindUser, RoomKindGroup, RoomKindOrg, RoomKindTask:
		return parts[0], parts[1], true
	}
	return "", "", false
}

// DMConversationID builds the deterministic key for a 1-on-1 conversation:
// dm_<lower>_<higher>, so both sides compute the same id.
func DMConversationID(a, b string) string {
	p := []string{a, b}
	sort.Strings(p)
	return "dm_" + p[0] + "_" + p[1]
}
