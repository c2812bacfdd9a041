package auth

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/pkg/response"
)

// UpdateUserRequest is the body for PATCH /users/:id. Absent fields are left alone.
type UpdateUserRequest struct {
	Email *string      `json:"email" binding:"omitempty,email"`
	Name  *string      `json:"name" binding:"omitempty,min=1,max=255"`
	Role  *models.Role `json:"role"`
}

// UserList is the response for GET /users.
type UserList struct {
	Users  []models.UserPublic `json:"users"`
	Total  int                 `json:"total"`
	Offset int                 `json:"offset"`
	Limit  int                 `json:"limit"`
}

// UsersHandler serves the caller's organization's users. Every call goes
// through the tenant guard with the caller's organization.
type UsersHandler struct {
	users  *tenant.Guard[*models.User]
	logger *zap.Logger
}

// NewUsersHandler creates a users handler.
func NewUsersHandler(users *tenant.Guard[*models.User], logger *zap.Logger) *UsersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsersHandler{users: users, logger: logger}
}

// List handles GET /users?offset=&limit=.
func (h *UsersHandler) List(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		response.BadRequest(c, "invalid offset")
		return
	}
	limit, err := queryInt(c, "limit", tenant.DefaultLimit)
	if err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}
	orgID := CurrentOrganizationID(c)
	ctx := c.Request.Context()

	list, err := h.users.List(ctx, orgID, offset, limit)
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	total, err := h.users.Count(ctx, orgID)
	if err != nil {
		h.logger.Error("count users", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	out := make([]models.UserPublic, 0, len(list))
	for _, u := range list {
		out = append(out, u.ToPublic())
	}
	response.OK(c, UserList{Users: out, Total: total, Offset: offset, Limit: limit})
}

// Get handles GET /users/:id.
func (h *UsersHandler) Get(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	u, err := h.users.Get(c.Request.Context(), id, CurrentOrganizationID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, u.ToPublic())
}

// Update handles PATCH /users/:id.
func (h *UsersHandler) Update(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	patch := tenant.Patch{}
	if req.Email != nil {
		patch["email"] = normalizeEmail(*req.Email)
	}
	if req.Name != nil {
		patch["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			response.BadRequest(c, "invalid role")
			return
		}
		patch["role"] = string(*req.Role)
	}
	if len(patch) == 0 {
		response.BadRequest(c, "no fields to update")
		return
	}

	u, err := h.users.Update(c.Request.Context(), id, CurrentOrganizationID(c), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("user updated", zap.String("user_id", u.ID.String()))
	response.OK(c, u.ToPublic())
}

// Delete handles DELETE /users/:id.
func (h *UsersHandler) Delete(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	deleted, err := h.users.Delete(c.Request.Context(), id, CurrentOrganizationID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !deleted {
		response.NotFound(c, "user not found")
		return
	}
	response.NoContent(c)
}

func (h *UsersHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, tenant.ErrUnknownField):
		response.BadRequest(c, err.Error())
	case errors.Is(err, tenant.ErrConflict):
		response.Conflict(c, "Email already registered")
	default:
		h.logger.Error("users request failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}

func userIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
