package templates

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smart-scribe/backend/internal/middleware"
	"github.com/smart-scribe/backend/internal/models"
	"github.com/smart-scribe/backend/pkg/response"
)

// UpsertRequest is the body for PUT /templates.
type UpsertRequest struct {
	Body string `json:"body" binding:"required"`
}

// Handler handles template HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a templates handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Get handles GET /templates. Returns the stored template, or the default with
// is_default=true when none is stored.
func (h *Handler) Get(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	t, err := h.repo.GetByOwner(c.Request.Context(), ownerID)
	if err != nil {
		if err == models.ErrNotFound {
			response.OK(c, gin.H{"body": DefaultTemplate, "is_default": true})
			return
		}
		h.logger.Error("get template failed", zap.Error(err), zap.String("owner_id", ownerID.String()))
		response.Internal(c, "failed to load template")
		return
	}
	response.OK(c, gin.H{"body": t.Body, "is_default": false, "updated_at": t.UpdatedAt})
}

// Upsert handles PUT /templates.
func (h *Handler) Upsert(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	t, err := h.repo.Upsert(c.Request.Context(), ownerID, req.Body)
	if err != nil {
		h.logger.Error("upsert template failed", zap.Error(err), zap.String("owner_id", ownerID.String()))
		response.Internal(c, "failed to save template")
		return
	}
	response.OK(c, t)
}
