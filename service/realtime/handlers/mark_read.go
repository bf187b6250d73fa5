package handlers

import (
	"context"

	"teamchat/module/messaging/model"
	"teamchat/service/realtime"
	"teamchat/tools/errs"
)

// MarkReadHandler zeroes the caller's unread counter for one
// conversation. Re-sending the frame is harmless.
type MarkReadHandler struct {
	svc Messenger
}

func (h *MarkReadHandler) Type() string { return realtime.ClientFrameMarkRead }

func (h *MarkReadHandler) Handle(ctx context.Context, sess *realtime.Session, f *realtime.ClientFrame) error {
	p, err := realtime.DecodePayload[realtime.MarkReadPayload](f)
	if err != nil || p.ConversationID == "" {
		return errs.ErrUnknownFrameType.WithDetail("malformed mark_read payload")
	}
	convType := p.Type
	if convType == "" {
		convType = model.ConversationTypeDM
	}
	_, err = h.svc.MarkRead(ctx, sess.Client.UserID, p.ConversationID, convType, p.PeerID)
	return err
}
