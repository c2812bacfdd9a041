package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/internal/users"
	"github.com/trivia-app/backend/pkg/utils"
)

func TestLoginComparesPasswordForUnknownEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := users.NewMemoryStore()
	guard := tenant.NewGuard[*models.User](store)
	hash, err := utils.HashPassword("correct-horse")
	require.NoError(t, err)
	_, err = guard.Create(context.Background(), &models.User{
		Email: "known@test.io", Name: "Known", Role: models.RoleParticipant, PasswordHash: hash,
	}, uuid.New())
	require.NoError(t, err)

	var compared []string
	orig := checkPassword
	checkPassword = func(plain, hashed string) bool {
		compared = append(compared, hashed)
		return orig(plain, hashed)
	}
	t.Cleanup(func() { checkPassword = orig })

	h := NewHandler(HandlerConfig{
		Directory: NewMemoryDirectory(store),
		Tokens:    newTestService(t),
		Logger:    zaptest.NewLogger(t),
	})
	r := gin.New()
	r.POST("/auth/login", h.Login)
	login := func(email string) int {
		body := `{"email":"` + email + `","password":"wrong-horse"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, login("nobody@test.io"))
	require.Len(t, compared, 1)
	assert.Equal(t, absentUserHash(), compared[0])
	assert.NotEmpty(t, compared[0])

	assert.Equal(t, http.StatusUnauthorized, login("known@test.io"))
	require.Len(t, compared, 2)
	assert.Equal(t, hash, compared[1])
}
