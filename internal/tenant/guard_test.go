package tenant_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
)

func newUserGuard() *tenant.Guard[*models.User] {
	store := tenant.NewMemoryStore(tenant.WithUniqueKey(func(u *models.User) string { return u.Email }))
	return tenant.NewGuard[*models.User](store)
}

func seedUser(t *testing.T, g *tenant.Guard[*models.User], orgID uuid.UUID, email string) *models.User {
	t.Helper()
	u, err := g.Create(context.Background(), &models.User{Email: email, Name: email, Role: models.RoleParticipant}, orgID)
	require.NoError(t, err)
	return u
}

func TestGuardGetIsScopedToOrganization(t *testing.T) {
	ctx := context.Background()
	g := newUserGuard()
	orgA, orgB := uuid.New(), uuid.New()
	u := seedUser(t, g, orgA, "a@example.com")

	got, err := g.Get(ctx, u.ID, orgA)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = g.Get(ctx, u.ID, orgB)
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	_, err = g.Get(ctx, uuid.New(), orgA)
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestGuardCreateOverridesPayloadOrganization(t *testing.T) {
	ctx := context.Background()
	g := newUserGuard()
	orgA, foreign := uuid.New(), uuid.New()

	u, err := g.Create(ctx, &models.User{Email: "x@example.com", OrganizationID: foreign}, orgA)
	require.NoError(t, err)
	assert.Equal(t, orgA, u.OrganizationID)

	_, err = g.Get(ctx, u.ID, foreign)
	assert.ErrorIs(t, err, tenant.ErrNotFound)
	n, err := g.Count(ctx, foreign)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGuardUpdateDropsOrganizationField(t *testing.T) {
	ctx := context.Background()
	g := newUserGuard()
	orgA, orgB := uuid.New(), uuid.New()
	u := seedUser(t, g, orgA, "a@example.com")

	patch := tenant.Patch{"name": "Renamed", "organization_id": orgB.String(), "id": uuid.New().String()}
	updated, err := g.Update(ctx, u.ID, orgA, patch)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, orgA, updated.OrganizationID)
	assert.Equal(t, u.ID, updated.ID)
	assert.Contains(t, patch, "organization_id", "caller's patch must not be mutated")
}

func TestGuardUpdateAndDeleteWithForeignOrganizationAreNoOps(t *testing.T) {
	ctx := context.Background()
	g := newUserGuard()
	orgA, orgB := uuid.New(), uuid.New()
	u := seedUser(t, g, orgA, "a@example.com")

	_, err := g.Update(ctx, u.ID, orgB, tenant.Patch{"name": "hijacked"})
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	deleted, err := g.Delete(ctx, u.ID, orgB)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := g.Get(ctx, u.ID, orgA)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Name)

	deleted, err = g.Delete(ctx, u.ID, orgA)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = g.Delete(ctx, u.ID, orgA)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGuardListAndCount(t *testing.T) {
	ctx := context.Background()
	g := newUserGuard()
	orgA, orgB := uuid.New(), uuid.New()
	for _, e := range []string{"1@a.io", "2@a.io", "3@a.io"} {
		seedUser(t, g, orgA, e)
	}
	seedUser(t, g, orgB, "1@b.io")

	all, err := g.List(ctx, orgA, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, u := range all {
		assert.Equal(t, orgA, u.OrganizationID)
	}

	page, err := g.List(ctx, orgA, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ID, page[0].ID, "pages follow primary key order")

	empty, err := g.List(ctx, orgA, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	n, err := g.Count(ctx, orgB)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGuardRejectsMissingOrganization(t *testing.T) {
	ctx := context.Background()
	g := newUserGuard()

	_, err := g.Create(ctx, &models.User{Email: "x@example.com"}, uuid.Nil)
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
	_, err = g.Get(ctx, uuid.New(), uuid.Nil)
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
	_, err = g.List(ctx, uuid.Nil, 0, 10)
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
	_, err = g.Count(ctx, uuid.Nil)
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
}

func TestGuardUniqueKeyConflict(t *testing.T) {
	ctx := context.Background()
	g := newUserGuard()
	seedUser(t, g, uuid.New(), "dup@example.com")

	_, err := g.Create(ctx, &models.User{Email: "dup@example.com"}, uuid.New())
	assert.ErrorIs(t, err, tenant.ErrConflict)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	g := newUserGuard()
	orgA := uuid.New()
	u := seedUser(t, g, orgA, "a@example.com")

	u.OrganizationID = uuid.New()
	u.Name = "mutated"

	got, err := g.Get(ctx, u.ID, orgA)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Name)
}

func TestParticipationRowsAreImmutable(t *testing.T) {
	ctx := context.Background()
	g := tenant.NewGuard[*models.Participation](tenant.NewMemoryStore[*models.Participation]())
	orgA := uuid.New()
	p, err := g.Create(ctx, &models.Participation{SessionID: "s1", UserID: uuid.New(), Event: models.ParticipationJoined}, orgA)
	require.NoError(t, err)

	_, err = g.Update(ctx, p.ID, orgA, tenant.Patch{"session_id": "s2"})
	assert.ErrorIs(t, err, tenant.ErrUnknownField)
}
