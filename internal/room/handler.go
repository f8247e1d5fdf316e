package room

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ouse-live/backend/pkg/response"
)

// Handler serves the live room state.
type Handler struct {
	manager *Manager
}

// NewHandler creates a room handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// State handles GET /live/:id. A missing record is the viewer's terminal
// error screen; a store failure is retryable by reload.
func (h *Handler) State(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	snap, err := h.manager.Snapshot(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.ServiceUnavailable(c, "failed to load webinar")
		return
	}
	response.OK(c, snap)
}
