package realtime

import (
	"context"

	"teamchat/tools/errs"
)

// Session is what a frame handler sees: the registry plus the client the
// frame arrived on.
type Session struct {
	Reg    *Registry
	Client *Client
}

// Handler processes one inbound frame type.
type Handler interface {
	Type() string
	Handle(ctx context.Context, sess *Session, f *ClientFrame) error
}

// HandlerMux routes inbound frames by type.
type HandlerMux struct {
	handlers map[string]Handler
}

func NewHandlerMux() *HandlerMux {
	return &HandlerMux{handlers: make(map[string]Handler)}
}

func (m *HandlerMux) Register(h Handler) { m.handlers[h.Type()] = h }

func (m *HandlerMux) Dispatch(ctx context.Context, sess *Session, f *ClientFrame) error {
	h, ok := m.handlers[f.Type]
	if !ok {
		return errs.ErrUnknownFrameType.WithDetail(f.Type)
	}
	return h.Handle(ctx, sess, f)
}
