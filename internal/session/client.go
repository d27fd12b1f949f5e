package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one recipient's outbound half: a bounded queue drained by a
// single writer pump. Enqueue never blocks the caller; a full queue is the
// recipient's problem, not the room's.
type Client struct {
	conn *websocket.Conn
	send chan models.ServerFrame

	mu   sync.Mutex
	hook func(models.ServerFrame)

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Client{
		conn: conn,
		send: make(chan models.ServerFrame, queueSize),
		done: make(chan struct{}),
	}
}

// SetSendHook replaces the WebSocket writer (used in tests).
func (c *Client) SetSendHook(fn func(models.ServerFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Enqueue offers a frame to the recipient's queue. It reports false when the
// queue is full or the client is closed; the caller decides what that means.
func (c *Client) Enqueue(frame models.ServerFrame) bool {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(frame)
		return true
	}

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Start launches the writer pump. Call once per connected client.
func (c *Client) Start() {
	go c.writePump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Done is closed when the client has been shut down.
func (c *Client) Done() <-chan struct{} { return c.done }
