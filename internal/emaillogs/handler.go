package emaillogs

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
	"github.com/ouse-live/backend/pkg/response"
)

// Handler exposes the join-link email log for the dashboard.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an email log handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// ListByWebinar returns a webinar's email deliveries, newest first.
func (h *Handler) ListByWebinar(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	list, err := h.repo.ListByWebinar(c.Request.Context(), webinarID)
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err), zap.String("webinar_id", webinarID.String()))
		response.Internal(c, "failed to list email logs")
		return
	}
	if list == nil {
		list = []models.EmailLog{}
	}
	response.OK(c, list)
}
