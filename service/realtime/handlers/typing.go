package handlers

import (
	"context"

	"teamchat/service/realtime"
	"teamchat/tools/errs"
)

// TypingHandler relays typing signals. Nothing is stored; a lost signal
// costs nothing.
type TypingHandler struct {
	relay TypingRelay
}

func (h *TypingHandler) Type() string { return realtime.ClientFrameTyping }

func (h *TypingHandler) Handle(ctx context.Context, sess *realtime.Session, f *realtime.ClientFrame) error {
	p, err := realtime.DecodePayload[realtime.TypingPayload](f)
	if err != nil {
		return errs.ErrUnknownFrameType.WithDetail("malformed typing payload")
	}
	if p.ReceiverID == "" && p.GroupID == "" {
		return nil // nothing to relay to
	}
	return h.relay.RelayTyping(ctx, sess.Client.UserID, p.ReceiverID, p.GroupID)
}
