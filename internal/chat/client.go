package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
)

const (
	maxMessageLen = 500
	writeWait     = 10 * time.Second
	publishWait   = 5 * time.Second
)

// Client is a single WebSocket connection in a webinar's chat.
type Client struct {
	ID        string
	WebinarID uuid.UUID
	Name      string    // per-device guest display name
	Boundary  time.Time // inclusive lower bound for visible messages
	hub       *Hub
	repo      *Repository
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger

	mu      sync.Mutex
	backlog map[uuid.UUID]struct{} // ids already written as history
}

// inboundMessage is the payload of a chat_message event from the client.
// Only the text is trusted; sender and timestamp are assigned server-side.
type inboundMessage struct {
	Text string `json:"text"`
}

func (c *Client) trySend(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		// buffer full, drop; the client is lagging
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case EventMessage:
			c.handlePublish(msg.Data)
		default:
			// ignore
		}
	}
}

// handlePublish persists the message (the store assigns created_at) and fans
// it out. A failed insert is a write error surfaced to the sender only; the
// message is not broadcast.
func (c *Client) handlePublish(data json.RawMessage) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return
	}
	text := clampMessage(in.Text)
	if text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishWait)
	defer cancel()
	msg, err := c.repo.Create(ctx, c.WebinarID, c.Name, text)
	if err != nil {
		c.logger.Warn("chat message write failed", zap.Error(err), zap.String("webinar_id", c.WebinarID.String()))
		c.hub.SendToClient(c.WebinarID, c.ID, EventError, map[string]string{
			"message": "message could not be delivered",
		})
		return
	}
	c.hub.PublishMessage(c.WebinarID, *msg)
}

// clampMessage trims whitespace and caps the text at maxMessageLen runes,
// never splitting a multi-byte character.
func clampMessage(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxMessageLen {
		return s
	}
	r := []rune(s)
	if len(r) <= maxMessageLen {
		return s
	}
	return string(r[:maxMessageLen])
}

// sendBacklog writes history straight to the connection, before the write
// pump starts, so the backlog is never bounded by the send buffer. The ids
// are remembered: the client is already registered while the history query
// runs, and a message that arrives live in that window would otherwise be
// written twice.
func (c *Client) sendBacklog(msgs []models.ChatMessage) error {
	ids := make(map[uuid.UUID]struct{}, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(WSMessage{Event: EventMessage, Data: data, id: m.ID}); err != nil {
			return err
		}
		ids[m.ID] = struct{}{}
	}
	c.mu.Lock()
	c.backlog = ids
	c.mu.Unlock()
	return nil
}

// dropDuplicate reports whether id was already delivered as history. Each id
// matches at most once.
func (c *Client) dropDuplicate(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.backlog) == 0 {
		return false
	}
	if _, ok := c.backlog[id]; !ok {
		return false
	}
	delete(c.backlog, id)
	return true
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if msg.id != uuid.Nil && c.dropDuplicate(msg.id) {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
