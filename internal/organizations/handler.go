package organizations

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/auth"
	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/pkg/response"
)

// Slug must be lowercase alphanumeric and hyphens only, 1–100 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9-]{1,100}$`)

// Handler handles organization HTTP endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name string      `json:"name" binding:"required"`
	Slug string      `json:"slug" binding:"required"`
	Plan models.Plan `json:"plan"`
}

// CreateOrganization handles POST /organizations.
func (h *Handler) CreateOrganization(c *gin.Context) {
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and slug required")
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !slugRegex.MatchString(body.Slug) {
		response.BadRequest(c, "slug must be 1–100 chars, lowercase letters, numbers, hyphens only")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.BadRequest(c, "name must be 1–255 characters")
		return
	}
	if body.Plan == "" {
		body.Plan = models.PlanFree
	}
	if !body.Plan.Valid() {
		response.BadRequest(c, "plan must be free, premium or enterprise")
		return
	}
	org := &models.Organization{Name: body.Name, Slug: body.Slug, Plan: body.Plan}
	if err := h.repo.Create(c.Request.Context(), org); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			response.Conflict(c, "An organization with this slug already exists")
			return
		}
		h.logger.Error("create organization", zap.Error(err))
		response.Internal(c, "failed to create organization")
		return
	}
	response.Created(c, org)
}

// Current handles GET /organizations/current.
func (h *Handler) Current(c *gin.Context) {
	org, err := h.repo.GetByID(c.Request.Context(), auth.CurrentOrganizationID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "Organization not found")
			return
		}
		response.Internal(c, "failed to load organization")
		return
	}
	response.OK(c, org)
}

// DeleteCurrent handles DELETE /organizations/current (admin only).
func (h *Handler) DeleteCurrent(c *gin.Context) {
	orgID := auth.CurrentOrganizationID(c)
	ok, err := h.repo.Delete(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("delete organization", zap.Error(err), zap.String("organization_id", orgID.String()))
		response.Internal(c, "failed to delete organization")
		return
	}
	if !ok {
		response.NotFound(c, "Organization not found")
		return
	}
	h.logger.Info("organization deleted", zap.String("organization_id", orgID.String()))
	response.NoContent(c)
}
