package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trivia-app/backend/internal/auth"
	"github.com/trivia-app/backend/internal/middleware"
	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/organizations"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/internal/users"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testApp struct {
	router *gin.Engine
	orgs   *organizations.MemoryRepository
	users  *tenant.Guard[*models.User]
	tokens *auth.TokenService
	redis  *miniredis.Miniredis
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	tokens, err := auth.NewTokenService("handler-test-signing-key-0123456789-abcdef")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := users.NewMemoryStore()
	guard := tenant.NewGuard[*models.User](store)
	orgs := organizations.NewMemoryRepository()
	resolver := auth.NewResolver(tokens, guard, logger)

	h := auth.NewHandler(auth.HandlerConfig{
		Directory:     auth.NewMemoryDirectory(store),
		Users:         guard,
		Organizations: orgs,
		Tokens:        tokens,
		Revocations:   auth.NewRedisRevocations(rdb),
		SecureCookie:  true,
		Logger:        logger,
	})
	uh := auth.NewUsersHandler(guard, logger)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	protected := r.Group("")
	protected.Use(middleware.Auth(resolver, logger))
	protected.GET("/auth/me", h.Me)
	protected.GET("/users", uh.List)
	protected.GET("/users/:id", uh.Get)
	admin := protected.Group("")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.PATCH("/users/:id", uh.Update)
	admin.DELETE("/users/:id", uh.Delete)

	return &testApp{router: r, orgs: orgs, users: guard, tokens: tokens, redis: mr}
}

func (a *testApp) do(t *testing.T, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (a *testApp) seedOrg(t *testing.T, slug string, plan models.Plan) *models.Organization {
	t.Helper()
	org := &models.Organization{Name: slug, Slug: slug, Plan: plan}
	require.NoError(t, a.orgs.Create(context.Background(), org))
	return org
}

func (a *testApp) register(t *testing.T, email, slug string) models.UserPublic {
	t.Helper()
	w := a.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": "correct-horse", "name": "Test User", "organization_slug": slug,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var u models.UserPublic
	decode(t, w, &u)
	return u
}

func (a *testApp) login(t *testing.T, email string) (auth.TokenResponse, *http.Cookie) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tok auth.TokenResponse
	decode(t, w, &tok)
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.RefreshCookieName {
			return tok, c
		}
	}
	t.Fatal("no refresh cookie set")
	return tok, nil
}

func (a *testApp) promote(t *testing.T, u models.UserPublic, role models.Role) {
	t.Helper()
	_, err := a.users.Update(context.Background(), u.ID, u.OrganizationID, tenant.Patch{"role": role})
	require.NoError(t, err)
}

func TestRegister(t *testing.T) {
	app := newTestApp(t)
	org := app.seedOrg(t, "test-org", models.PlanFree)

	u := app.register(t, "Alice@Example.com", "test-org")
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, org.ID, u.OrganizationID)
	assert.Equal(t, models.RoleParticipant, u.Role)
	require.NotNil(t, u.Organization)
	assert.Equal(t, "test-org", u.Organization.Slug)

	w := app.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "alice@example.com", "password": "another-pass", "name": "Dup", "organization_slug": "test-org",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email already registered", decode(t, w, nil).Error)

	w = app.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "bob@example.com", "password": "another-pass", "name": "Bob", "organization_slug": "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "carol@example.com", "password": "short", "name": "Carol", "organization_slug": "test-org",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "dave@example.com", "password": strings.Repeat("é", 40), "name": "Dave", "organization_slug": "test-org",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "password must be at most 72 bytes", decode(t, w, nil).Error)
}

func TestRegisterIgnoresClientSuppliedOrganization(t *testing.T) {
	app := newTestApp(t)
	org := app.seedOrg(t, "test-org", models.PlanFree)
	other := app.seedOrg(t, "premium-org", models.PlanPremium)

	w := app.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "mallory@example.com", "password": "correct-horse", "name": "Mallory",
		"organization_slug": "test-org", "organization_id": other.ID.String(), "role": "admin",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var u models.UserPublic
	decode(t, w, &u)
	assert.Equal(t, org.ID, u.OrganizationID)
	assert.Equal(t, models.RoleParticipant, u.Role)
}

func TestLoginIssuesTokensAndRefreshCookie(t *testing.T) {
	app := newTestApp(t)
	org := app.seedOrg(t, "test-org", models.PlanFree)
	u := app.register(t, "alice@example.com", "test-org")

	tok, cookie := app.login(t, "ALICE@example.com")
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, 900, tok.ExpiresIn)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/auth", cookie.Path)
	assert.Equal(t, 604800, cookie.MaxAge)

	claims, err := app.tokens.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.Subject)
	assert.Equal(t, org.ID.String(), claims.OrganizationID)
	assert.Equal(t, []string{"participant"}, claims.Roles)

	w := app.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "alice@example.com", "password": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = app.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@example.com", "password": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeReturnsCallerWithOrganization(t *testing.T) {
	app := newTestApp(t)
	app.seedOrg(t, "test-org", models.PlanFree)
	app.register(t, "alice@example.com", "test-org")
	tok, _ := app.login(t, "alice@example.com")

	w := app.do(t, http.MethodGet, "/auth/me", nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)
	var me models.UserPublic
	decode(t, w, &me)
	assert.Equal(t, "alice@example.com", me.Email)
	require.NotNil(t, me.Organization)
	assert.Equal(t, "test-org", me.Organization.Slug)
	assert.NotContains(t, w.Body.String(), "password")

	w = app.do(t, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, auth.UnauthorizedMessage, decode(t, w, nil).Error)
}

func TestForgedOrganizationClaimIsUnauthorized(t *testing.T) {
	app := newTestApp(t)
	app.seedOrg(t, "test-org", models.PlanFree)
	premium := app.seedOrg(t, "premium-org", models.PlanPremium)
	u := app.register(t, "alice@example.com", "test-org")

	forged, err := app.tokens.IssueAccess(u.ID.String(), premium.ID.String(), []string{"admin"})
	require.NoError(t, err)

	w := app.do(t, http.MethodGet, "/users", nil, bearer(forged))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, auth.UnauthorizedMessage, decode(t, w, nil).Error)
}

func TestRefreshAndLogout(t *testing.T) {
	app := newTestApp(t)
	app.seedOrg(t, "test-org", models.PlanFree)
	app.register(t, "alice@example.com", "test-org")
	_, cookie := app.login(t, "alice@example.com")

	w := app.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, w.Code)
	var tok auth.TokenResponse
	decode(t, w, &tok)
	_, err := app.tokens.Verify(tok.AccessToken)
	require.NoError(t, err)

	w = app.do(t, http.MethodPost, "/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: tok.AccessToken}))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens are not refresh tokens")

	w = app.do(t, http.MethodPost, "/auth/logout", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, w.Code)
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.RefreshCookieName {
			cleared = c.MaxAge < 0
		}
	}
	assert.True(t, cleared)

	w = app.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "revoked refresh token")
}

func TestLogoutFailsWhenRevocationFails(t *testing.T) {
	app := newTestApp(t)
	app.seedOrg(t, "acme", models.PlanFree)
	app.register(t, "ann@acme.test", "acme")
	_, cookie := app.login(t, "ann@acme.test")

	app.redis.SetError("READONLY You can't write against a read only replica.")
	w := app.do(t, http.MethodPost, "/auth/logout", nil, withCookie(cookie))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode(t, w, nil)
	assert.False(t, env.Success)

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.RefreshCookieName {
			cleared = c.MaxAge < 0
		}
	}
	assert.True(t, cleared)

	// The token was never revoked.
	app.redis.SetError("")
	w = app.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUsersAreScopedToCallerOrganization(t *testing.T) {
	app := newTestApp(t)
	app.seedOrg(t, "test-org", models.PlanFree)
	app.seedOrg(t, "premium-org", models.PlanPremium)
	alice := app.register(t, "alice@example.com", "test-org")
	app.register(t, "bob@example.com", "test-org")
	mallory := app.register(t, "mallory@example.com", "premium-org")
	tok, _ := app.login(t, "alice@example.com")

	w := app.do(t, http.MethodGet, "/users", nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)
	var list auth.UserList
	decode(t, w, &list)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Users, 2)
	for _, u := range list.Users {
		assert.Equal(t, alice.OrganizationID, u.OrganizationID)
	}

	w = app.do(t, http.MethodGet, "/users?limit=1&offset=1", nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Len(t, list.Users, 1)

	w = app.do(t, http.MethodGet, "/users?limit=abc", nil, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodGet, "/users/"+alice.ID.String(), nil, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/users/"+mallory.ID.String(), nil, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodGet, "/users/not-a-uuid", nil, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminUpdateAndDelete(t *testing.T) {
	app := newTestApp(t)
	app.seedOrg(t, "test-org", models.PlanFree)
	premium := app.seedOrg(t, "premium-org", models.PlanPremium)
	admin := app.register(t, "admin@example.com", "test-org")
	bob := app.register(t, "bob@example.com", "test-org")
	mallory := app.register(t, "mallory@example.com", "premium-org")

	participantTok, _ := app.login(t, "bob@example.com")
	w := app.do(t, http.MethodPatch, "/users/"+bob.ID.String(), map[string]string{"name": "Bobby"}, bearer(participantTok.AccessToken))
	assert.Equal(t, http.StatusForbidden, w.Code)

	app.promote(t, admin, models.RoleAdmin)
	tok, _ := app.login(t, "admin@example.com")

	w = app.do(t, http.MethodPatch, "/users/"+bob.ID.String(), map[string]any{
		"name": "Bobby", "role": "facilitator", "organization_id": premium.ID.String(),
	}, bearer(tok.AccessToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.UserPublic
	decode(t, w, &updated)
	assert.Equal(t, "Bobby", updated.Name)
	assert.Equal(t, models.RoleFacilitator, updated.Role)
	assert.Equal(t, bob.OrganizationID, updated.OrganizationID)

	w = app.do(t, http.MethodPatch, "/users/"+bob.ID.String(), map[string]string{"role": "owner"}, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPatch, "/users/"+bob.ID.String(), map[string]string{"email": "admin@example.com"}, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPatch, "/users/"+mallory.ID.String(), map[string]string{"name": "pwned"}, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodDelete, "/users/"+mallory.ID.String(), nil, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, err := app.users.Get(context.Background(), mallory.ID, mallory.OrganizationID)
	require.NoError(t, err)

	w = app.do(t, http.MethodDelete, "/users/"+bob.ID.String(), nil, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = app.do(t, http.MethodDelete, "/users/"+uuid.NewString(), nil, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
