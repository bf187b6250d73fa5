package handlers

import (
	"context"

	"teamchat/module/messaging/model"
	"teamchat/service/realtime"
)

// Messenger is the send/read surface. *service.MessageService implements
// it.
type Messenger interface {
	SendDM(ctx context.Context, senderID, receiverID, content string) (*model.Message, error)
	SendGroupMessage(ctx context.Context, senderID, groupID, content string) (*model.Message, error)
	MarkRead(ctx context.Context, userID, conversationID, convType, peerID string) (int64, error)
}

// TypingRelay forwards ephemeral typing signals. *dispatch.Dispatcher
// implements it.
type TypingRelay interface {
	RelayTyping(ctx context.Context, senderID, receiverID, groupID string) error
}

// Authorizer gates ad-hoc room joins. roster.Resolver implements it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, room string) (bool, error)
}

// Heartbeater refreshes presence on client pings. *presence.Tracker
// implements it.
type Heartbeater interface {
	Heartbeat(ctx context.Context, userID string) error
}

// Deps bundles everything the frame handlers need.
type Deps struct {
	Messenger   Messenger
	TypingRelay TypingRelay
	Authorizer  Authorizer
	Heartbeater Heartbeater
}

// RegisterAll wires every inbound frame type into the mux.
func RegisterAll(mux *realtime.HandlerMux, deps Deps) {
	mux.Register(&SendHandler{svc: deps.Messenger})
	mux.Register(&JoinRoomHandler{auth: deps.Authorizer})
	mux.Register(&TypingHandler{relay: deps.TypingRelay})
	mux.Register(&MarkReadHandler{svc: deps.Messenger})
	mux.Register(&PingHandler{hb: deps.Heartbeater})
}
