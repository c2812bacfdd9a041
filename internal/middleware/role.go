package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trivia-app/backend/internal/auth"
	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. Use after Auth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[string(r)] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(auth.ContextUserRole)
		if role == "" {
			response.Abort(c, http.StatusUnauthorized, auth.UnauthorizedMessage)
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Abort(c, http.StatusForbidden, "insufficient permissions")
			return
		}
		c.Next()
	}
}
