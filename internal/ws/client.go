package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pliu/easyrent/internal/logger"
	"github.com/pliu/easyrent/internal/models"
)

// ConnState is the lifecycle of one socket.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID models.ID
	log    logger.Logger

	connectedAt time.Time

	// Buffered channel of outbound messages, drained by writePump.
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     ConnState
	closeCode int
	closeText string

	// replayMu orders live chat against connect-time replay.
	replayMu  sync.Mutex
	replaying bool
}

func newClient(h *Hub, conn *websocket.Conn, user *models.User) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:         h,
		conn:        conn,
		userID:      user.ID,
		log:         h.log.With(logger.String("user_id", user.ID.String())),
		connectedAt: time.Now(),
		send:        make(chan []byte, h.opts.SendBuffer),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateAuthenticated,
		closeCode:   websocket.CloseNormalClosure,
		replaying:   h.opts.ReplayUnread,
	}
}

func (c *Client) UserID() models.ID { return c.userID }

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// acceptsLive reports whether chat may be pushed to c directly. While replay
// runs, new messages are left for the replay loop so they arrive after older
// ones.
func (c *Client) acceptsLive() bool {
	c.replayMu.Lock()
	defer c.replayMu.Unlock()
	return !c.replaying
}

func (c *Client) endReplay() {
	c.replayMu.Lock()
	c.replaying = false
	c.replayMu.Unlock()
}

// Send queues data without blocking. It reports false when the connection is
// closed or its buffer is full.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeWith marks the client closed and lets writePump send a close frame
// with code before tearing the connection down. Only the first call counts.
func (c *Client) closeWith(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.closeCode = code
	c.closeText = text
	close(c.send)
	c.cancel()
}

// readPump pumps messages from the websocket connection to the hub. Messages
// are handled one at a time, which keeps per-connection ordering.
func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in connection handler", logger.Any("panic", r))
			c.closeWith(websocket.CloseInternalServerErr, "internal error")
		}
		c.hub.disconnect(c)
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	if c.hub.opts.PingInterval > 0 {
		pongWait := c.hub.opts.PingInterval * 2
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn("unexpected socket close", logger.Error(err))
			}
			return
		}
		c.hub.HandleInbound(c.ctx, c, data)
	}
}

// writePump pumps messages from the hub to the websocket connection. It is
// the only writer of data frames.
func (c *Client) writePump() {
	var tick <-chan time.Time
	if c.hub.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.hub.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout))
			if !ok {
				c.mu.Lock()
				code, text := c.closeCode, c.closeText
				c.mu.Unlock()
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("socket write failed", logger.Error(err))
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-tick:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}
