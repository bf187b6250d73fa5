package handlers

import (
	"context"

	"teamchat/module/messaging/model"
	"teamchat/service/realtime"
	"teamchat/tools/errs"
)

// SendHandler commits a message send arriving over the socket. The
// committed id goes back to the sender as an ack; everyone else hears
// about it through the dispatcher.
type SendHandler struct {
	svc Messenger
}

func (h *SendHandler) Type() string { return realtime.ClientFrameSend }

func (h *SendHandler) Handle(ctx context.Context, sess *realtime.Session, f *realtime.ClientFrame) error {
	p, err := realtime.DecodePayload[realtime.SendMessagePayload](f)
	if err != nil {
		return errs.ErrUnknownFrameType.WithDetail("malformed send_message payload")
	}
	if p.Content == "" {
		return errs.NewCodeError(1403, "empty message content")
	}

	var msg *model.Message
	switch {
	case p.GroupID != "":
		msg, err = h.svc.SendGroupMessage(ctx, sess.Client.UserID, p.GroupID, p.Content)
	case p.ReceiverID != "":
		msg, err = h.svc.SendDM(ctx, sess.Client.UserID, p.ReceiverID, p.Content)
	default:
		return errs.ErrUserRequired.WithDetail("send_message needs receiver_id or group_id")
	}
	if err != nil {
		return err
	}

	sess.Reg.Push(sess.Client.UserID, realtime.BuildMessageAck(msg))
	return nil
}
