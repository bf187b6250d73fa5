package handlers

import (
	"context"

	"teamchat/service/realtime"
)

// PingHandler answers application-level pings and refreshes the presence
// timestamp so the stale sweep leaves active users alone.
type PingHandler struct {
	hb Heartbeater
}

func (h *PingHandler) Type() string { return realtime.ClientFramePing }

func (h *PingHandler) Handle(ctx context.Context, sess *realtime.Session, _ *realtime.ClientFrame) error {
	if err := h.hb.Heartbeat(ctx, sess.Client.UserID); err != nil {
		return err
	}
	sess.Reg.Push(sess.Client.UserID, realtime.BuildPong())
	return nil
}
