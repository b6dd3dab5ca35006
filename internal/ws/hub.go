// Package ws is the realtime chat transport: authenticated socket
// connections, a registry of who is online, and the dispatcher that persists
// chat messages before delivering them.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/auth"
	"github.com/pliu/easyrent/internal/deal"
	"github.com/pliu/easyrent/internal/logger"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store"
)

// Envelope types.
const (
	TypeChat     = "chat"
	TypeChatSent = "chat_sent"
	TypeError    = "error"
	TypeDeal     = "deal"
	TypeRead     = "read"
)

// Delivery outcomes, also used as metric labels.
const (
	outcomeDelivered = "delivered"
	outcomeDropped   = "dropped"
	outcomeOffline   = "offline"
	outcomeQueued    = "queued"
	outcomeClaimed   = "claimed"
	outcomeFailed    = "failed"
)

var errSendBufferFull = errors.New("recipient send buffer full or connection closed")

// Inbound is a client-to-server envelope.
type Inbound struct {
	Type       string    `json:"type"`
	To         models.ID `json:"to"`
	PropertyID models.ID `json:"propertyId"`
	Content    string    `json:"content"`
}

// Outbound is a server-to-client envelope. Message holds a chat message for
// chat/chat_sent and a string for error.
type Outbound struct {
	Type    string `json:"type"`
	Message any    `json:"message,omitempty"`
}

type dealEnvelope struct {
	Type  string         `json:"type"`
	Event deal.EventType `json:"event"`
	Deal  *models.Deal   `json:"deal"`
}

// Authenticator resolves the socket's token to a user.
type Authenticator interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// Recorder receives connection and delivery counts.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageOutcome(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionOpened()     {}
func (nopRecorder) ConnectionClosed()     {}
func (nopRecorder) MessageOutcome(string) {}

type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	MaxContentLen  int
	WriteTimeout   time.Duration
	// PingInterval enables ping/pong keepalive when positive.
	PingInterval time.Duration
	ReplayUnread bool
	ReplayLimit  int
	// AllowedOrigins restricts the Origin header on upgrade. Empty allows all.
	AllowedOrigins []string
	Recorder       Recorder
}

func (o *Options) setDefaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.MaxContentLen <= 0 {
		o.MaxContentLen = 4000
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReplayLimit <= 0 {
		o.ReplayLimit = 100
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
}

type Hub struct {
	registry *Registry
	messages store.MessageStore
	auth     Authenticator
	log      logger.Logger
	opts     Options
	upgrader websocket.Upgrader
}

func NewHub(registry *Registry, messages store.MessageStore, authenticator Authenticator, log logger.Logger, opts Options) *Hub {
	opts.setDefaults()
	h := &Hub{
		registry: registry,
		messages: messages,
		auth:     authenticator,
		log:      log,
		opts:     opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeWs upgrades the request and authenticates it with the token from the
// query string or Authorization header. Auth failures close with 1008, other
// failures with 1011.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	user, err := h.auth.Verify(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		code := websocket.CloseInternalServerErr
		text := "internal error"
		if apperr.HasCode(err, apperr.CodeAuth, "") {
			code = websocket.ClosePolicyViolation
			text = apperr.As(err).Message
		} else {
			h.log.Error("socket authentication failed", logger.Error(err))
		}
		closeConn(conn, code, text, h.opts.WriteTimeout)
		return
	}

	c := newClient(h, conn, user)
	if prev := h.registry.Register(c.userID, c); prev != nil {
		c.log.Info("connection replaced an earlier one")
	}
	h.opts.Recorder.ConnectionOpened()
	c.log.Info("socket connected")

	go c.writePump()
	if h.opts.ReplayUnread {
		h.replay(c)
	}
	go c.readPump()
}

func closeConn(conn *websocket.Conn, code int, text string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	conn.Close()
}

func (h *Hub) disconnect(c *Client) {
	h.registry.Unregister(c.userID, c)
	c.closeWith(websocket.CloseNormalClosure, "")
	h.opts.Recorder.ConnectionClosed()
	c.log.Info("socket disconnected", logger.Duration("connected_for", time.Since(c.connectedAt)))
}

// replay pushes messages addressed to c's user that no connection has taken
// yet, oldest first. It drains in batches until the store has nothing left,
// and the final empty check happens under replayMu so a message appended
// meanwhile is either seen here or pushed live afterwards.
func (h *Hub) replay(c *Client) {
	sent := 0
	defer func() {
		if sent > 0 {
			c.log.Debug("replayed undelivered messages", logger.Int("count", sent))
		}
	}()

	for {
		c.replayMu.Lock()
		pending, err := h.messages.Undelivered(c.ctx, c.userID, h.opts.ReplayLimit)
		if err != nil || len(pending) == 0 {
			c.replaying = false
			c.replayMu.Unlock()
			if err != nil {
				c.log.Warn("replay failed", logger.Error(err))
			}
			return
		}
		c.replayMu.Unlock()

		for i := range pending {
			switch h.deliver(c.ctx, c, &pending[i]) {
			case outcomeDelivered:
				sent++
			case outcomeClaimed:
			default:
				c.endReplay()
				c.log.Warn("replay truncated", logger.Int("sent", sent))
				return
			}
		}
	}
}

// deliver claims msg and queues it on c. The claim keeps a message from being
// pushed twice, whether by replay or by a connection that was being replaced.
func (h *Hub) deliver(ctx context.Context, c *Client, msg *models.Message) string {
	claimed, err := h.messages.ClaimDelivery(ctx, msg.ID)
	if err != nil {
		c.log.Warn("failed to claim message", logger.String("message_id", msg.ID.String()), logger.Error(err))
		return outcomeFailed
	}
	if !claimed {
		return outcomeClaimed
	}
	if h.sendEnvelope(c, TypeChat, msg) {
		return outcomeDelivered
	}
	if err := h.messages.ReleaseDelivery(ctx, msg.ID); err != nil {
		c.log.Warn("failed to release message", logger.String("message_id", msg.ID.String()), logger.Error(err))
	}
	return outcomeDropped
}

// HandleInbound processes one frame from c. It never returns an error to the
// read loop: failures are reported to the sender as error envelopes.
func (h *Hub) HandleInbound(ctx context.Context, c *Client, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch in.Type {
	case TypeChat:
		h.dispatchChat(ctx, c, in)
	default:
		c.log.Warn("ignoring unknown envelope type", logger.String("type", in.Type))
	}
}

func (h *Hub) dispatchChat(ctx context.Context, c *Client, in Inbound) {
	if err := h.validateChat(c, in); err != nil {
		h.sendError(c, err.Message)
		return
	}

	msg := &models.Message{
		PropertyID: in.PropertyID,
		SenderID:   c.userID,
		ReceiverID: in.To,
		Content:    in.Content,
	}
	if err := h.messages.AppendMessage(ctx, msg); err != nil {
		c.log.Error("failed to persist chat message", logger.Error(apperr.Persistence(err, "append message")))
		h.opts.Recorder.MessageOutcome(outcomeFailed)
		h.sendError(c, "failed to send message")
		return
	}

	outcome := outcomeOffline
	if rc, ok := h.registry.Lookup(in.To); ok {
		if rc.acceptsLive() {
			outcome = h.deliver(ctx, rc, msg)
		} else {
			outcome = outcomeQueued
		}
		if outcome == outcomeDropped {
			c.log.Warn("chat delivery dropped",
				logger.String("message_id", msg.ID.String()),
				logger.Error(apperr.Transport(errSendBufferFull, "deliver chat message")),
			)
		}
	}
	h.opts.Recorder.MessageOutcome(outcome)

	h.sendEnvelope(c, TypeChatSent, msg)
}

func (h *Hub) validateChat(c *Client, in Inbound) *apperr.Error {
	switch {
	case in.To.Empty():
		return apperr.Validation("recipient is required")
	case in.PropertyID.Empty():
		return apperr.Validation("propertyId is required")
	case in.To == c.userID:
		return apperr.Validation("cannot send a message to yourself")
	case strings.TrimSpace(in.Content) == "":
		return apperr.Validation("message content is required")
	case len(in.Content) > h.opts.MaxContentLen:
		return apperr.Validation("message content is too long")
	}
	return nil
}

func (h *Hub) sendError(c *Client, message string) {
	h.sendEnvelope(c, TypeError, message)
}

func (h *Hub) sendEnvelope(c *Client, typ string, payload any) bool {
	data, err := json.Marshal(Outbound{Type: typ, Message: payload})
	if err != nil {
		c.log.Error("failed to encode envelope", logger.String("type", typ), logger.Error(err))
		return false
	}
	return c.Send(data)
}

// SendNotification pushes v to userID if they are connected.
func (h *Hub) SendNotification(userID models.ID, v any) bool {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to encode notification", logger.Error(err))
		return false
	}
	return c.Send(data)
}

// DealChanged tells the other party about a deal transition.
func (h *Hub) DealChanged(_ context.Context, ev deal.Event) {
	recipient := ev.Recipient()
	if recipient.Empty() {
		return
	}
	h.SendNotification(recipient, dealEnvelope{Type: TypeDeal, Event: ev.Type, Deal: ev.Deal})
}

var _ deal.Notifier = (*Hub)(nil)
