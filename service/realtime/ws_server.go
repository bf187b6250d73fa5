package realtime

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"teamchat/logger"
	"teamchat/tools/errs"
	"teamchat/tools/ids"
	"teamchat/tools/safe"
	"teamchat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSServer upgrades authenticated websocket sessions and runs their read
// loop. The token is verified before the upgrade; an anonymous socket is
// never registered.
type WSServer struct {
	reg *Registry
	mux *HandlerMux
	jwt security.Options
}

func NewWSServer(reg *Registry, mux *HandlerMux, jwt security.Options) *WSServer {
	return &WSServer{reg: reg, mux: mux, jwt: jwt}
}

// HandleWS is the gin endpoint. Token comes from the `token` query
// parameter or a bearer Authorization header.
func (s *WSServer) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	userID, err := security.Verify(s.jwt, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": errs.ErrTokenInvalid.Code, "msg": errs.ErrTokenInvalid.Msg})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[WS] upgrade error user=%s: %v", userID, err)
		return
	}

	client := NewClient(ids.GenerateString(), userID, ws, s.reg.Conf().SendQueueSize)

	ctx := context.Background()
	if _, err := s.reg.Register(ctx, client); err != nil {
		logger.Errorf("[WS] register failed user=%s: %v", userID, err)
		_ = ws.Close()
		return
	}
	// a superseded session is only unmapped; its socket winds down on its
	// own and its teardown finds nothing in the registry

	safe.Go("ws-write-"+client.ConnID, client.WritePump)
	s.readLoop(client)

	s.reg.Unregister(context.Background(), client.ConnID)
	client.Close()
}

func (s *WSServer) readLoop(client *Client) {
	ws := client.WS
	ws.SetReadLimit(maxMsgSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed user=%s conn=%s", client.UserID, client.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout user=%s conn=%s", client.UserID, client.ConnID)
			} else {
				logger.Infof("[WS] read err user=%s conn=%s err=%v", client.UserID, client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseClientFrame(data)
		if perr != nil {
			logger.Infof("[WS] bad frame user=%s conn=%s err=%v len=%d", client.UserID, client.ConnID, perr, len(data))
			continue
		}

		sess := &Session{Reg: s.reg, Client: client}
		if herr := s.mux.Dispatch(context.Background(), sess, frame); herr != nil {
			s.reportError(client, frame.Type, herr)
		}
	}
}

// reportError sends a structured error frame back on the session instead
// of killing the connection.
func (s *WSServer) reportError(client *Client, frameType string, err error) {
	var ce *errs.CodeError
	if !pkgerrors.As(err, &ce) {
		logger.Errorf("[WS] handler err user=%s type=%s: %v", client.UserID, frameType, err)
		ce = errs.NewCodeError(1000, "internal error")
	}
	s.reg.Push(client.UserID, BuildError(ce.Code, ce.Msg))
}
