package ws

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"go-chat-realtime/internal/models"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max message size
	maxMessageSize = 512 * 1024 // 512 KB

	sendBuffer = 256
)

// SessionState is the lifecycle of one connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	connID  string
	user    models.User
	limiter *rate.Limiter
	state   atomic.Int32

	// Guarded by Hub.mu.
	rooms  map[string]bool
	closed bool
}

func newClient(conn *websocket.Conn, connID string, user models.User, limiter *rate.Limiter) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		connID:  connID,
		user:    user,
		limiter: limiter,
		rooms:   make(map[string]bool),
	}
	c.setState(StateConnecting)
	return c
}

func (c *Client) State() SessionState {
	return SessionState(c.state.Load())
}

func (c *Client) setState(s SessionState) {
	c.state.Store(int32(s))
}

// ConnID identifies the session.
func (c *Client) ConnID() string { return c.connID }

// closeSend closes the outbound queue once. Caller holds Hub.mu.
func (c *Client) closeSend() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads frames until the connection fails, handing each to handle.
// onClose runs once when the loop exits.
func (c *Client) ReadPump(handle func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("[CLIENT] Unexpected close", "user", c.user.ID, "conn", c.connID, "error", err)
			}
			break
		}

		handle(c, message)
	}
}

// WritePump pumps queued events to the connection and keeps it alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				slog.Error("[CLIENT] Failed to get writer", "user", c.user.ID, "conn", c.connID, "error", err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				slog.Error("[CLIENT] Failed to close writer", "user", c.user.ID, "conn", c.connID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Error("[CLIENT] Failed to send ping", "user", c.user.ID, "conn", c.connID, "error", err)
				return
			}
		}
	}
}
