package webinars

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
	"github.com/ouse-live/backend/internal/player"
	"github.com/ouse-live/backend/pkg/response"
)

// RoomInvalidator drops cached live room state after a webinar changes.
type RoomInvalidator interface {
	Invalidate(webinarID uuid.UUID)
}

// Handler exposes the webinar setup endpoints.
type Handler struct {
	repo   *Repository
	rooms  RoomInvalidator
	logger *zap.Logger
}

// NewHandler creates a webinar handler.
func NewHandler(repo *Repository, rooms RoomInvalidator, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, rooms: rooms, logger: logger}
}

// RegisterRoutes registers webinar routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/webinars", h.List)
	rg.POST("/webinars", h.Create)
	rg.GET("/webinars/:id", h.Get)
	rg.PATCH("/webinars/:id/config", h.UpdateConfig)
	rg.GET("/webinars/:id/schedules", h.ListSchedules)
	rg.POST("/webinars/:id/schedules", h.AddSchedule)
	rg.DELETE("/webinars/:id/schedules/:sid", h.DeleteSchedule)
	rg.PUT("/webinars/:id/registration-form", h.UpdateRegistrationForm)
	rg.POST("/webinars/:id/publish", h.Publish)
	rg.DELETE("/webinars/:id", h.Delete)
}

// List returns all webinars for the dashboard.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list webinars failed", zap.Error(err))
		response.Internal(c, "failed to list webinars")
		return
	}
	if list == nil {
		list = []models.Webinar{}
	}
	response.OK(c, list)
}

type createRequest struct {
	InternalTitle string `json:"internal_title"`
	PublicTitle   string `json:"public_title"`
}

// Create makes a new draft webinar.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	w := &models.Webinar{
		InternalTitle: req.InternalTitle,
		PublicTitle:   req.PublicTitle,
		Status:        models.WebinarStatusDraft,
	}
	if err := h.repo.Create(c.Request.Context(), w); err != nil {
		h.logger.Error("create webinar failed", zap.Error(err))
		response.Internal(c, "failed to create webinar")
		return
	}
	response.Created(c, w)
}

// Get returns a single webinar with its schedules.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	w, err := h.repo.GetWithSchedules(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "webinar not found")
			return
		}
		h.logger.Error("get webinar failed", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to load webinar")
		return
	}
	response.OK(c, w)
}

type configRequest struct {
	VideoRef      *string `json:"video_ref"`
	PublicTitle   *string `json:"public_title"`
	InternalTitle *string `json:"internal_title"`
}

// UpdateConfig saves the configuration step: video reference and titles.
// The video reference may be an iframe snippet, a player URL or a bare id.
func (h *Handler) UpdateConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	var videoID *string
	if req.VideoRef != nil {
		vid, err := player.ParseVideoRef(*req.VideoRef)
		if err != nil {
			response.BadRequest(c, "video reference not recognized")
			return
		}
		videoID = &vid
	}

	if err := h.repo.UpdateConfig(c.Request.Context(), id, videoID, req.PublicTitle, req.InternalTitle); err != nil {
		h.logger.Error("update config failed", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to update webinar")
		return
	}
	h.rooms.Invalidate(id)

	w, err := h.repo.GetWithSchedules(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}
	response.OK(c, w)
}

// ListSchedules returns a webinar's schedules.
func (h *Handler) ListSchedules(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	list, err := h.repo.ListSchedules(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list schedules failed", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to list schedules")
		return
	}
	if list == nil {
		list = []models.Schedule{}
	}
	response.OK(c, list)
}

type scheduleRequest struct {
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	DisplayDate string    `json:"display_date"`
	DisplayTime string    `json:"display_time"`
}

// AddSchedule appends a session occurrence to a webinar.
func (h *Handler) AddSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: starts_at is required")
		return
	}
	s := &models.Schedule{
		WebinarID:   id,
		StartsAt:    req.StartsAt.UTC(),
		DisplayDate: req.DisplayDate,
		DisplayTime: req.DisplayTime,
	}
	if s.DisplayDate == "" {
		s.DisplayDate = s.StartsAt.Format("Monday, January 2")
	}
	if s.DisplayTime == "" {
		s.DisplayTime = s.StartsAt.Format("3:04 PM MST")
	}
	if err := h.repo.AddSchedule(c.Request.Context(), s); err != nil {
		h.logger.Error("add schedule failed", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to add schedule")
		return
	}
	h.rooms.Invalidate(id)
	response.Created(c, s)
}

// DeleteSchedule removes a session occurrence.
func (h *Handler) DeleteSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	sid, err := uuid.Parse(c.Param("sid"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	if err := h.repo.DeleteSchedule(c.Request.Context(), id, sid); err != nil {
		h.logger.Error("delete schedule failed", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to delete schedule")
		return
	}
	h.rooms.Invalidate(id)
	response.NoContent(c)
}

// UpdateRegistrationForm replaces the registration field definitions.
func (h *Handler) UpdateRegistrationForm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	var fields []models.FormField
	if err := c.ShouldBindJSON(&fields); err != nil {
		response.BadRequest(c, "invalid request body: expected an array of fields")
		return
	}
	for _, f := range fields {
		if f.ID == "" || f.Label == "" {
			response.BadRequest(c, "each field needs an id and a label")
			return
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		response.Internal(c, "failed to encode form")
		return
	}
	if err := h.repo.UpdateRegistrationForm(c.Request.Context(), id, raw); err != nil {
		h.logger.Error("update registration form failed", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to update registration form")
		return
	}
	response.OK(c, fields)
}

// Publish marks a webinar live-ready. It requires a configured video and at
// least one schedule.
func (h *Handler) Publish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	w, err := h.repo.GetWithSchedules(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}
	if w.VideoID == "" {
		response.BadRequest(c, "cannot publish without a video")
		return
	}
	if len(w.Schedules) == 0 {
		response.BadRequest(c, "cannot publish without at least one schedule")
		return
	}
	if err := h.repo.UpdateStatus(c.Request.Context(), id, models.WebinarStatusPublished); err != nil {
		h.logger.Error("publish failed", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to publish webinar")
		return
	}
	w.Status = models.WebinarStatusPublished
	h.rooms.Invalidate(id)
	response.OK(c, w)
}

// Delete removes a webinar and everything attached to it.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("delete webinar failed", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to delete webinar")
		return
	}
	h.rooms.Invalidate(id)
	response.NoContent(c)
}
