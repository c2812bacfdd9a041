package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
)

// UnauthorizedMessage is the only text any transport shows for ErrUnauthorized.
const UnauthorizedMessage = "could not validate credentials"

// ErrUserNotFound is returned when a valid token names a user that does not
// exist in the token's organization.
var ErrUserNotFound = fmt.Errorf("%w: user not found", ErrUnauthorized)

// UserFinder is the tenant-scoped user lookup the resolver depends on.
// *tenant.Guard[*models.User] satisfies it.
type UserFinder interface {
	Get(ctx context.Context, id, orgID uuid.UUID) (*models.User, error)
}

// Verifier validates access tokens.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Resolver turns a bearer token into a tenant-bound user. It is shared by the
// HTTP middleware and WebSocket admission.
type Resolver struct {
	tokens Verifier
	users  UserFinder
	logger *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(tokens Verifier, users UserFinder, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{tokens: tokens, users: users, logger: logger}
}

// Resolve verifies token and loads its subject within its organization.
// Every credential failure wraps ErrUnauthorized; storage errors are returned as is.
func (r *Resolver) Resolve(ctx context.Context, token string) (*models.User, error) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		r.logger.Debug("token rejected", zap.Error(err))
		return nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return nil, ErrTokenMalformed
	}
	orgID, err := uuid.Parse(claims.OrganizationID)
	if err != nil || orgID == uuid.Nil {
		return nil, ErrTokenMalformed
	}
	user, err := r.users.Get(ctx, userID, orgID)
	if errors.Is(err, tenant.ErrNotFound) {
		r.logger.Debug("token subject not in organization",
			zap.String("user_id", userID.String()), zap.String("organization_id", orgID.String()))
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
