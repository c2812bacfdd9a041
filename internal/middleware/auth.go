package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/auth"
	"github.com/trivia-app/backend/pkg/response"
)

// Auth returns a middleware that resolves the bearer token and sets the
// caller's identity in context. All credential failures get the same response.
func Auth(resolver *auth.Resolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			unauthorized(c)
			return
		}
		user, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				unauthorized(c)
				return
			}
			logger.Error("resolve identity", zap.Error(err))
			response.Abort(c, http.StatusInternalServerError, "failed to authenticate")
			return
		}
		auth.SetIdentity(c, user)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Abort(c, http.StatusUnauthorized, auth.UnauthorizedMessage)
}
