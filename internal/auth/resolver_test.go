package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/internal/users"
)

type failingFinder struct{ err error }

func (f failingFinder) Get(context.Context, uuid.UUID, uuid.UUID) (*models.User, error) {
	return nil, f.err
}

func TestResolverBindsUserToTokenOrganization(t *testing.T) {
	ctx := context.Background()
	tokens := newTestService(t)
	guard := tenant.NewGuard[*models.User](users.NewMemoryStore())
	resolver := NewResolver(tokens, guard, zaptest.NewLogger(t))

	testOrg, premiumOrg := uuid.New(), uuid.New()
	u, err := guard.Create(ctx, &models.User{Email: "user@test.io", Name: "User", Role: models.RoleParticipant}, testOrg)
	require.NoError(t, err)

	token, err := tokens.IssueAccess(u.ID.String(), testOrg.String(), u.Roles())
	require.NoError(t, err)
	got, err := resolver.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, testOrg, got.OrganizationID)

	// A validly signed token naming another organization finds nobody.
	forged, err := tokens.IssueAccess(u.ID.String(), premiumOrg.String(), u.Roles())
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, forged)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolverRejectsBadClaims(t *testing.T) {
	ctx := context.Background()
	tokens := newTestService(t)
	resolver := NewResolver(tokens, tenant.NewGuard[*models.User](users.NewMemoryStore()), nil)

	for _, tc := range []struct{ sub, org string }{
		{"not-a-uuid", uuid.NewString()},
		{uuid.NewString(), ""},
		{uuid.NewString(), uuid.Nil.String()},
	} {
		token, err := tokens.IssueAccess(tc.sub, tc.org, nil)
		require.NoError(t, err)
		_, err = resolver.Resolve(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err := resolver.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolverPassesThroughStorageErrors(t *testing.T) {
	tokens := newTestService(t)
	boom := errors.New("connection refused")
	resolver := NewResolver(tokens, failingFinder{err: boom}, nil)

	token, err := tokens.IssueAccess(uuid.NewString(), uuid.NewString(), nil)
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
