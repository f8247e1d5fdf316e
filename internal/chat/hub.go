// Package chat delivers the session-scoped live chat: messages are persisted
// with store-assigned timestamps and fanned out to WebSocket clients, each of
// which sees only messages created at or after its session boundary.
package chat

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
)

const (
	// PingInterval and PongWait (seconds) drive the WebSocket heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventMessage carries one chat message.
	EventMessage = "chat_message"
	// EventError reports a failed publish back to the sender only.
	EventError = "error"
)

// WSMessage is the WebSocket message envelope. The unexported id carries the
// chat message id through the send queue so the write pump can drop a copy
// that was already delivered as history.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`

	id uuid.UUID
}

// Publisher publishes a room event to Redis for cross-instance fan-out.
type Publisher interface {
	PublishRoomEvent(webinarID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to a room's channel and invokes handler per event.
type Subscriber interface {
	SubscribeRoom(webinarID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains webinar id -> connected clients. The per-webinar Redis
// subscription starts with the first client and is cancelled with the last,
// so idle webinars hold no resources.
type Hub struct {
	rooms  map[uuid.UUID]map[string]*Client
	subs   map[uuid.UUID]func()
	mu     sync.RWMutex
	logger *zap.Logger
	pub    Publisher
	sub    Subscriber
}

// NewHub creates a chat hub. pub/sub may be nil (single instance, tests);
// published messages are then delivered locally.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Register adds a client to its webinar's room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.WebinarID] == nil {
		h.rooms[c.WebinarID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeRoom(c.WebinarID, func(event string, payload []byte) {
				h.handleRemote(c.WebinarID, event, payload)
			})
			if err == nil {
				h.subs[c.WebinarID] = cancel
			} else {
				h.logger.Warn("redis subscribe failed", zap.Error(err), zap.String("webinar_id", c.WebinarID.String()))
			}
		}
	}
	h.rooms[c.WebinarID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("chat client joined",
		zap.String("client_id", c.ID),
		zap.String("webinar_id", c.WebinarID.String()),
		zap.Time("boundary", c.Boundary),
	)
}

// Unregister removes a client; the last one out cancels the Redis
// subscription. The send channel is closed here, exactly once, so the write
// pump ends and no event is ever delivered to a torn-down client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.WebinarID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.rooms, c.WebinarID)
			if cancel, ok := h.subs[c.WebinarID]; ok {
				cancel()
				delete(h.subs, c.WebinarID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("chat client left", zap.String("client_id", c.ID))
}

// PublishMessage sends a persisted message to every instance's clients.
// Publish-only when Redis is wired: the subscription callback performs the
// local broadcast once, avoiding duplicate delivery.
func (h *Hub) PublishMessage(webinarID uuid.UUID, msg models.ChatMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if h.pub != nil {
		if err := h.pub.PublishRoomEvent(webinarID, EventMessage, data); err == nil {
			return
		}
		h.logger.Warn("redis publish failed, delivering locally", zap.String("webinar_id", webinarID.String()))
	}
	h.deliverMessage(webinarID, msg)
}

// BroadcastEvent sends a non-message event (e.g. a room phase transition) to
// all local clients of a webinar, unfiltered. Implements room.Broadcaster.
func (h *Hub) BroadcastEvent(webinarID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[webinarID] {
		c.trySend(msg)
	}
}

// deliverMessage fans a chat message out to local clients, honoring each
// client's session boundary: created-at strictly before the boundary is never
// shown (messages from a prior session must not leak into a new one).
func (h *Hub) deliverMessage(webinarID uuid.UUID, msg models.ChatMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	env := WSMessage{Event: EventMessage, Data: data, id: msg.ID}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[webinarID] {
		if msg.CreatedAt.Before(c.Boundary) {
			continue
		}
		c.trySend(env)
	}
}

// SendToClient delivers an event to a single client (e.g. publish errors).
func (h *Hub) SendToClient(webinarID uuid.UUID, clientID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	c := h.rooms[webinarID][clientID]
	h.mu.RUnlock()
	if c != nil {
		c.trySend(WSMessage{Event: event, Data: data})
	}
}

// AudienceCount returns the number of connected clients for a webinar.
func (h *Hub) AudienceCount(webinarID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[webinarID])
}

func (h *Hub) handleRemote(webinarID uuid.UUID, event string, payload []byte) {
	if event == EventMessage {
		var msg models.ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		h.deliverMessage(webinarID, msg)
		return
	}
	h.BroadcastEvent(webinarID, event, json.RawMessage(payload))
}
