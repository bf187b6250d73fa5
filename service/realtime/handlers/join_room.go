package handlers

import (
	"context"

	"teamchat/service/realtime"
	"teamchat/tools/errs"
)

// JoinRoomHandler subscribes the session to an extra room, e.g. a task
// room opened in the UI. Rejections come back as an explicit error frame
// rather than a silent drop.
type JoinRoomHandler struct {
	auth Authorizer
}

func (h *JoinRoomHandler) Type() string { return realtime.ClientFrameJoinRoom }

func (h *JoinRoomHandler) Handle(ctx context.Context, sess *realtime.Session, f *realtime.ClientFrame) error {
	p, err := realtime.DecodePayload[realtime.JoinRoomPayload](f)
	if err != nil || p.Room == "" {
		return errs.ErrUnknownRoom
	}

	ok, err := h.auth.Authorize(ctx, sess.Client.UserID, p.Room)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotRoomMember.WithDetail(p.Room)
	}

	sess.Reg.JoinRoom(sess.Client.ConnID, p.Room)
	sess.Reg.Push(sess.Client.UserID, realtime.BuildJoinedRoom(p.Room))
	return nil
}
