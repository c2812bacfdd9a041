package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trivia-app/backend/internal/models"
)

const (
	// ContextUser is the key for the resolved *models.User in gin context.
	ContextUser = "user"
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextOrganizationID is the key for the caller's organization ID in gin context.
	ContextOrganizationID = "organization_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
)

// SetIdentity stores the resolved user in c.
func SetIdentity(c *gin.Context, user *models.User) {
	c.Set(ContextUser, user)
	c.Set(ContextUserID, user.ID)
	c.Set(ContextOrganizationID, user.OrganizationID)
	c.Set(ContextUserRole, string(user.Role))
}

// CurrentUser returns the user stored by SetIdentity.
func CurrentUser(c *gin.Context) *models.User {
	return c.MustGet(ContextUser).(*models.User)
}

// CurrentOrganizationID returns the caller's organization.
func CurrentOrganizationID(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextOrganizationID).(uuid.UUID)
}
