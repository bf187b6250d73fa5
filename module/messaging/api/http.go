package api

import (
	"net/http"
	"strconv"
	"time"

	"teamchat/middleware"
	"teamchat/module/messaging/model"
	"teamchat/module/messaging/presence"
	"teamchat/module/messaging/service"
	"teamchat/tools/errs"
	"teamchat/tools/security"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
)

// API is the REST surface: inbox, history, sends, read cursors and
// presence lookups. Live delivery stays on the websocket; these endpoints
// are what clients resynchronize from after a reconnect.
type API struct {
	svc     *service.MessageService
	tracker *presence.Tracker
	jwt     security.Options
}

func New(svc *service.MessageService, tracker *presence.Tracker, jwt security.Options) *API {
	return &API{svc: svc, tracker: tracker, jwt: jwt}
}

// RegisterRoutes mounts everything; ws is the upgrade endpoint.
func (a *API) RegisterRoutes(r *gin.Engine, ws gin.HandlerFunc) {
	r.POST("/api/login", a.login)
	r.GET("/ws", ws)

	authed := r.Group("/api", middleware.Auth(a.jwt))
	{
		authed.GET("/conversations", a.listConversations)
		authed.POST("/conversations/:id/read", a.markRead)
		authed.GET("/conversations/:id/unread", a.unreadCount)
		authed.GET("/presence/:user_id", a.presenceStatus)
		authed.GET("/messages/dm/:peer_id", a.dmHistory)
		authed.GET("/messages/group/:group_id", a.groupHistory)
		authed.POST("/messages", a.sendMessage)
		authed.PATCH("/messages/:id", a.editMessage)
		authed.DELETE("/messages/:id", a.deleteMessage)
		authed.POST("/messages/:id/reactions", a.toggleReaction)
	}
}

type loginReq struct {
	UserID string `json:"user_id" binding:"required"`
}

// login issues a session token. Identity is asserted by the caller; this
// service sits behind the platform's own authentication.
func (a *API) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "user_id required"})
		return
	}
	token, expireAt, err := security.Generate(a.jwt, req.UserID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expire_at": expireAt})
}

func (a *API) listConversations(c *gin.Context) {
	out, err := a.svc.Conversations(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	if out == nil {
		out = []model.ConversationSummary{}
	}
	c.JSON(http.StatusOK, out)
}

type markReadReq struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
}

func (a *API) markRead(c *gin.Context) {
	var req markReadReq
	_ = c.ShouldBindJSON(&req)
	if req.Type == "" {
		req.Type = model.ConversationTypeDM
	}
	modified, err := a.svc.MarkRead(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Type, req.PeerID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": modified})
}

func (a *API) unreadCount(c *gin.Context) {
	n, err := a.svc.UnreadCount(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

func (a *API) presenceStatus(c *gin.Context) {
	rec, err := a.tracker.Status(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *API) dmHistory(c *gin.Context) {
	msgs, err := a.svc.DMHistory(c.Request.Context(), middleware.UserID(c), c.Param("peer_id"),
		parseBefore(c), parseLimit(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (a *API) groupHistory(c *gin.Context) {
	msgs, err := a.svc.GroupHistory(c.Request.Context(), middleware.UserID(c), c.Param("group_id"),
		parseBefore(c), parseLimit(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

type sendReq struct {
	ReceiverID string `json:"receiver_id"`
	GroupID    string `json:"group_id"`
	Content    string `json:"content" binding:"required"`
}

func (a *API) sendMessage(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "content required"})
		return
	}

	var (
		msg *model.Message
		err error
	)
	switch {
	case req.GroupID != "":
		msg, err = a.svc.SendGroupMessage(c.Request.Context(), middleware.UserID(c), req.GroupID, req.Content)
	case req.ReceiverID != "":
		msg, err = a.svc.SendDM(c.Request.Context(), middleware.UserID(c), req.ReceiverID, req.Content)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"msg": "receiver_id or group_id required"})
		return
	}
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type editReq struct {
	Content string `json:"content" binding:"required"`
}

func (a *API) editMessage(c *gin.Context) {
	var req editReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "content required"})
		return
	}
	msg, err := a.svc.EditMessage(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Content)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (a *API) deleteMessage(c *gin.Context) {
	if err := a.svc.DeleteMessage(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reactionReq struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (a *API) toggleReaction(c *gin.Context) {
	var req reactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "emoji required"})
		return
	}
	msg, err := a.svc.ToggleReaction(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Emoji)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func parseBefore(c *gin.Context) time.Time {
	raw := c.Query("before")
	if raw == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}

func parseLimit(c *gin.Context) int64 {
	n, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || n <= 0 {
		return 50
	}
	if n > 200 {
		return 200
	}
	return n
}

// abortWith maps CodeError codes onto HTTP statuses.
func abortWith(c *gin.Context, err error) {
	var ce *errs.CodeError
	if pkgerrors.As(err, &ce) {
		status := http.StatusForbidden
		switch {
		case ce.Code >= 1100 && ce.Code < 1200:
			status = http.StatusUnauthorized
		case ce.Code == errs.ErrMessageNotFound.Code:
			status = http.StatusNotFound
		}
		c.AbortWithStatusJSON(status, ce)
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
}
