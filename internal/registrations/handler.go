package registrations

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
	"github.com/ouse-live/backend/internal/webinars"
	"github.com/ouse-live/backend/pkg/queue"
	"github.com/ouse-live/backend/pkg/response"
)

// Handler exposes attendee registration and join-link endpoints.
type Handler struct {
	repo          *Repository
	webinars      *webinars.Repository
	tokens        *TokenIssuer
	jobs          *queue.Queue
	publicBaseURL string
	logger        *zap.Logger
}

// NewHandler creates a registration handler.
func NewHandler(repo *Repository, webinarRepo *webinars.Repository, tokens *TokenIssuer, jobs *queue.Queue, publicBaseURL string, logger *zap.Logger) *Handler {
	return &Handler{
		repo:          repo,
		webinars:      webinarRepo,
		tokens:        tokens,
		jobs:          jobs,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// RegisterRoutes registers registration routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webinars/:id/register", h.Register)
	rg.GET("/webinars/:id/registrations", h.ListByWebinar)
	rg.GET("/registrations/:token/validate", h.ValidateToken)
}

type registerRequest struct {
	Email     string            `json:"email" binding:"required"`
	FullName  string            `json:"full_name"`
	Responses map[string]string `json:"responses"`
}

type registerResponse struct {
	Registration *models.Registration `json:"registration"`
	JoinURL      string               `json:"join_url"`
}

// Register records an attendee for a webinar and queues the join-link email.
// Registering twice with the same email refreshes the registration and sends
// a fresh link.
func (h *Handler) Register(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: email is required")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		response.BadRequest(c, "a valid email is required")
		return
	}

	w, err := h.webinars.GetByID(c.Request.Context(), webinarID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "webinar not found")
			return
		}
		h.logger.Error("load webinar failed", zap.Error(err), zap.String("webinar_id", webinarID.String()))
		response.Internal(c, "failed to load webinar")
		return
	}
	if w.Status != models.WebinarStatusPublished {
		response.Conflict(c, "registration is not open for this webinar")
		return
	}

	responses := json.RawMessage(`{}`)
	if req.Responses != nil {
		responses, err = json.Marshal(req.Responses)
		if err != nil {
			response.BadRequest(c, "invalid responses")
			return
		}
	}
	reg := &models.Registration{
		WebinarID: webinarID,
		Email:     req.Email,
		FullName:  strings.TrimSpace(req.FullName),
		Responses: responses,
	}
	if err := h.repo.Upsert(c.Request.Context(), reg); err != nil {
		h.logger.Error("upsert registration failed", zap.Error(err), zap.String("webinar_id", webinarID.String()))
		response.Internal(c, "failed to register")
		return
	}

	token, err := h.tokens.Issue(reg.ID, webinarID)
	if err != nil {
		h.logger.Error("issue join token failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		response.Internal(c, "failed to register")
		return
	}
	joinURL := fmt.Sprintf("%s/join/%s", h.publicBaseURL, token)

	if h.jobs != nil {
		payload := queue.JoinLinkEmailPayload{
			WebinarID:      webinarID,
			RegistrationID: reg.ID,
			RecipientEmail: reg.Email,
			RecipientName:  reg.FullName,
			JoinURL:        joinURL,
			WebinarTitle:   w.PublicTitle,
		}
		if err := h.jobs.EnqueueJoinLinkEmail(c.Request.Context(), payload); err != nil {
			// The registration is already saved; the join link in the
			// response still works without the email.
			h.logger.Error("enqueue join-link email failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		}
	}

	response.Created(c, registerResponse{Registration: reg, JoinURL: joinURL})
}

// ListByWebinar returns a webinar's registrations for the dashboard.
func (h *Handler) ListByWebinar(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	list, err := h.repo.ListByWebinar(c.Request.Context(), webinarID)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err), zap.String("webinar_id", webinarID.String()))
		response.Internal(c, "failed to list registrations")
		return
	}
	if list == nil {
		list = []models.Registration{}
	}
	response.OK(c, list)
}

type validateResponse struct {
	WebinarID string `json:"webinar_id"`
	LivePath  string `json:"live_path"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
}

// ValidateToken checks a join token and returns the live room the attendee
// should be sent to.
func (h *Handler) ValidateToken(c *gin.Context) {
	registrationID, webinarID, err := h.tokens.Verify(c.Param("token"))
	if err != nil {
		response.NotFound(c, "this join link is invalid or has expired")
		return
	}
	reg, err := h.repo.GetByID(c.Request.Context(), registrationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "this join link is invalid or has expired")
			return
		}
		h.logger.Error("load registration failed", zap.Error(err), zap.String("registration_id", registrationID.String()))
		response.Internal(c, "failed to validate join link")
		return
	}
	if reg.WebinarID != webinarID {
		response.NotFound(c, "this join link is invalid or has expired")
		return
	}
	response.OK(c, validateResponse{
		WebinarID: webinarID.String(),
		LivePath:  fmt.Sprintf("/live/%s", webinarID),
		Email:     reg.Email,
		FullName:  reg.FullName,
	})
}
