package sessionlog

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/auth"
	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/pkg/response"
)

// Handler handles GET /sessions/activity.
type Handler struct {
	guard  *tenant.Guard[*models.Participation]
	logger *zap.Logger
}

// NewHandler creates a session log handler.
func NewHandler(guard *tenant.Guard[*models.Participation], logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{guard: guard, logger: logger}
}

// ListActivity handles GET /sessions/activity?offset=&limit= (facilitator/admin:
// joins and leaves recorded for the caller's organization).
func (h *Handler) ListActivity(c *gin.Context) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		response.BadRequest(c, "invalid offset")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(tenant.DefaultLimit)))
	if err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}
	orgID := auth.CurrentOrganizationID(c)
	ctx := c.Request.Context()

	list, err := h.guard.List(ctx, orgID, offset, limit)
	if err != nil {
		h.logger.Error("list session activity", zap.Error(err))
		response.Internal(c, "failed to list activity")
		return
	}
	total, err := h.guard.Count(ctx, orgID)
	if err != nil {
		h.logger.Error("count session activity", zap.Error(err))
		response.Internal(c, "failed to list activity")
		return
	}
	response.OK(c, gin.H{"activity": list, "total": total})
}
