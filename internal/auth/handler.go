package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/pkg/response"
	"github.com/trivia-app/backend/pkg/utils"
)

const (
	// RefreshCookieName is the cookie carrying the refresh token.
	RefreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8,max=72"`
	Name             string `json:"name" binding:"required,min=1,max=255"`
	OrganizationSlug string `json:"organization_slug" binding:"required,min=1,max=100"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the login and refresh response. The refresh token is only
// ever sent as a cookie.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// OrganizationLookup is the organization access auth needs.
type OrganizationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	directory    Directory
	users        *tenant.Guard[*models.User]
	orgs         OrganizationLookup
	tokens       *TokenService
	revocations  RevocationStore
	secureCookie bool
	logger       *zap.Logger
}

// HandlerConfig groups the auth handler's collaborators.
type HandlerConfig struct {
	Directory     Directory
	Users         *tenant.Guard[*models.User]
	Organizations OrganizationLookup
	Tokens        *TokenService
	// Revocations may be nil, in which case logout only clears the cookie.
	Revocations  RevocationStore
	SecureCookie bool
	Logger       *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		directory:    cfg.Directory,
		users:        cfg.Users,
		orgs:         cfg.Organizations,
		tokens:       cfg.Tokens,
		revocations:  cfg.Revocations,
		secureCookie: cfg.SecureCookie,
		logger:       logger,
	}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	org, err := h.orgs.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(req.OrganizationSlug)))
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			response.NotFound(c, "Organization not found")
			return
		}
		h.logger.Error("lookup organization", zap.Error(err))
		response.Internal(c, "failed to register user")
		return
	}

	email := normalizeEmail(req.Email)
	if _, err := h.directory.GetByEmail(ctx, email); err == nil {
		response.BadRequest(c, "Email already registered")
		return
	} else if !errors.Is(err, tenant.ErrNotFound) {
		h.logger.Error("lookup email", zap.Error(err))
		response.Internal(c, "failed to register user")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, "password must be at most 72 bytes")
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	now := time.Now().UTC()
	user, err := h.users.Create(ctx, &models.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         models.RoleParticipant,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, org.ID)
	if err != nil {
		if errors.Is(err, tenant.ErrConflict) {
			response.BadRequest(c, "Email already registered")
			return
		}
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	h.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("organization_id", org.ID.String()))
	public := user.ToPublic()
	public.Organization = org
	response.Created(c, public)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.directory.GetByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if err != nil && !errors.Is(err, tenant.ErrNotFound) {
		h.logger.Error("lookup email", zap.Error(err))
		response.Internal(c, "failed to log in")
		return
	}
	if user == nil {
		// Same bcrypt cost as a wrong password for a known email.
		checkPassword(req.Password, absentUserHash())
		response.Unauthorized(c, "Invalid email or password")
		return
	}
	if !checkPassword(req.Password, user.PasswordHash) {
		response.Unauthorized(c, "Invalid email or password")
		return
	}

	access, err := h.tokens.IssueAccess(user.ID.String(), user.OrganizationID.String(), user.Roles())
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	refresh, _, err := h.tokens.IssueRefresh(user.ID.String())
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	h.setRefreshCookie(c, refresh, int(h.tokens.RefreshTTL().Seconds()))
	response.OK(c, h.tokenResponse(access))
}

// Refresh handles POST /auth/refresh. The refresh token is read from its
// cookie only.
func (h *Handler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	raw, err := c.Cookie(RefreshCookieName)
	if err != nil || raw == "" {
		response.Unauthorized(c, UnauthorizedMessage)
		return
	}
	claims, err := h.tokens.VerifyRefresh(raw)
	if err != nil {
		response.Unauthorized(c, UnauthorizedMessage)
		return
	}
	if h.revocations != nil {
		revoked, err := h.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			h.logger.Error("check refresh revocation", zap.Error(err))
			response.Internal(c, "failed to refresh token")
			return
		}
		if revoked {
			response.Unauthorized(c, UnauthorizedMessage)
			return
		}
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		response.Unauthorized(c, UnauthorizedMessage)
		return
	}
	user, err := h.directory.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			response.Unauthorized(c, UnauthorizedMessage)
			return
		}
		h.logger.Error("lookup user", zap.Error(err))
		response.Internal(c, "failed to refresh token")
		return
	}
	access, err := h.tokens.IssueAccess(user.ID.String(), user.OrganizationID.String(), user.Roles())
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, h.tokenResponse(access))
}

// Logout handles POST /auth/logout: revokes the refresh token, if any, and
// clears its cookie.
func (h *Handler) Logout(c *gin.Context) {
	if raw, err := c.Cookie(RefreshCookieName); err == nil && raw != "" && h.revocations != nil {
		if claims, err := h.tokens.VerifyRefresh(raw); err == nil && claims.ExpiresAt != nil {
			ttl := time.Until(claims.ExpiresAt.Time)
			if err := h.revocations.Revoke(c.Request.Context(), claims.ID, ttl); err != nil {
				h.logger.Error("revoke refresh token", zap.String("jti", claims.ID), zap.Error(err))
				h.setRefreshCookie(c, "", -1)
				response.Internal(c, "Failed to log out")
				return
			}
		}
	}
	h.setRefreshCookie(c, "", -1)
	response.OK(c, gin.H{"message": "Logged out successfully"})
}

var (
	checkPassword = utils.CheckPassword

	absentHashOnce sync.Once
	absentHash     string
)

// absentUserHash is compared against on logins for unknown emails.
func absentUserHash() string {
	absentHashOnce.Do(func() {
		absentHash, _ = utils.HashPassword("absent-user-placeholder")
	})
	return absentHash
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	user := CurrentUser(c)
	org, err := h.orgs.GetByID(c.Request.Context(), user.OrganizationID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			response.NotFound(c, "Organization not found")
			return
		}
		response.Internal(c, "failed to load organization")
		return
	}
	public := user.ToPublic()
	public.Organization = org
	response.OK(c, public)
}

func (h *Handler) tokenResponse(access string) TokenResponse {
	return TokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(h.tokens.AccessTTL().Seconds()),
	}
}

func (h *Handler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookieName, value, maxAge, refreshCookiePath, "", h.secureCookie, true)
}
