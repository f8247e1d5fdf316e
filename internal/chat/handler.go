package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/room"
	"github.com/ouse-live/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Handler serves the chat WebSocket.
type Handler struct {
	hub    *Hub
	rooms  *room.Manager
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(hub *Hub, rooms *room.Manager, repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, rooms: rooms, repo: repo, logger: logger}
}

// ServeWs handles GET /live/:id/chat. The subscription is gated on a known
// session boundary: until the room has a pending or active session there is
// no lower bound to filter by, and subscribing would expose prior-session
// history.
func (h *Handler) ServeWs(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}

	boundary, err := h.rooms.Boundary(c.Request.Context(), webinarID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.ServiceUnavailable(c, "failed to load webinar")
		return
	}
	if boundary == nil {
		response.Conflict(c, "chat opens once a session is scheduled")
		return
	}

	// Cookie must be set before the connection is hijacked.
	name := GuestName(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:        uuid.New().String(),
		WebinarID: webinarID,
		Name:      name,
		Boundary:  *boundary,
		hub:       h.hub,
		repo:      h.repo,
		conn:      conn,
		send:      make(chan WSMessage, 256),
		logger:    h.logger,
	}

	// Register before loading history: a message that lands while the query
	// runs is queued live, and its history copy is dropped by id in the write
	// pump, so the client sees every message from the boundary on exactly
	// once.
	h.hub.Register(client)

	backlog, err := h.repo.ListSince(c.Request.Context(), webinarID, *boundary)
	if err != nil {
		h.logger.Warn("chat backlog load failed", zap.Error(err), zap.String("webinar_id", webinarID.String()))
	}
	if err := client.sendBacklog(backlog); err != nil {
		h.hub.Unregister(client)
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
