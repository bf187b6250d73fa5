package realtime

import (
	"sync"
	"time"

	"teamchat/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pingEvery  = 25 * time.Second
	pongWait   = 75 * time.Second
	maxMsgSize = 64 << 10
)

// Client is one authenticated websocket session. A user has at most one
// live session; registering a second one supersedes the first.
//
// Send is never closed: delivery paths may still hold the handle after
// teardown, and a late enqueue must land in the buffer or be dropped,
// never panic. The write pump is stopped through done instead.
type Client struct {
	ConnID string
	UserID string
	WS     *websocket.Conn
	Send   chan []byte // outbound queue, consumed by the single writer goroutine

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(connID, userID string, ws *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID: connID,
		UserID: userID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Close ends the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Enqueue offers a payload to the outbound queue without blocking.
// Reports false for a closed session or a full queue; the payload is
// dropped either way.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// WritePump is the only goroutine allowed to write to the socket. It
// drains Send, keeps the ping schedule and closes the socket on exit.
func (c *Client) WritePump() {
	t := time.NewTicker(pingEvery)
	defer func() {
		t.Stop()
		_ = c.WS.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.WS.WriteMessage(websocket.CloseMessage, nil)
			return
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[WS] write err user=%s conn=%s err=%v", c.UserID, c.ConnID, err)
				return
			}
		case <-t.C:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
