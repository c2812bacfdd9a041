package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AccessTTL is the lifetime of an access token.
	AccessTTL = 900 * time.Second
	// RefreshTTL is the lifetime of a refresh token.
	RefreshTTL = 604800 * time.Second

	// MinSecretLength is the minimum signing key size in bytes.
	MinSecretLength = 32

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrUnauthorized is the single outcome callers expose for any credential failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken covers every reason a token fails verification.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	// ErrTokenMalformed is returned for tokens that cannot be parsed or use another algorithm.
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	// ErrTokenSignature is returned when the signature does not verify.
	ErrTokenSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
	// ErrTokenExpired is returned once exp has passed.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)

	// ErrWeakSecret is returned by NewTokenService for unusable key material.
	ErrWeakSecret = errors.New("jwt secret is too weak")
)

var insecureSecrets = []string{
	"change-me-in-production",
	"change_this_in_production",
	"changeme",
	"your-secret-key-here",
	"secret",
	"password",
}

// Claims holds the identity and tenant carried by a token.
type Claims struct {
	OrganizationID string   `json:"org_id,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	Type           string   `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 tokens. It holds no mutable state.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// WithTTL overrides the access and refresh lifetimes.
func WithTTL(access, refresh time.Duration) TokenOption {
	return func(s *TokenService) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

// NewTokenService validates secret and creates a token service.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if err := CheckSecret(secret); err != nil {
		return nil, err
	}
	s := &TokenService{
		secret:     []byte(secret),
		accessTTL:  AccessTTL,
		refreshTTL: RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckSecret rejects short, default and low-variety keys.
func CheckSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: must be at least %d bytes", ErrWeakSecret, MinSecretLength)
	}
	lower := strings.ToLower(secret)
	for _, bad := range insecureSecrets {
		if strings.Contains(lower, bad) {
			return fmt.Errorf("%w: contains the insecure value %q", ErrWeakSecret, bad)
		}
	}
	distinct := make(map[byte]struct{})
	for i := 0; i < len(secret); i++ {
		distinct[secret[i]] = struct{}{}
	}
	if len(distinct) < 8 {
		return fmt.Errorf("%w: not enough distinct bytes", ErrWeakSecret)
	}
	return nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess creates an access token for subject in org.
func (s *TokenService) IssueAccess(subject, org string, roles []string) (string, error) {
	now := s.now()
	claims := Claims{
		OrganizationID: org,
		Roles:          roles,
		Type:           tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// IssueRefresh creates a refresh token for subject and returns it with its jti.
func (s *TokenService) IssueRefresh(subject string) (token, jti string, err error) {
	now := s.now()
	jti = uuid.New().String()
	claims := Claims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return token, jti, err
}

// Verify validates an access token and returns its claims.
func (s *TokenService) Verify(token string) (*Claims, error) {
	return s.verify(token, tokenTypeAccess)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return s.verify(token, tokenTypeRefresh)
}

func (s *TokenService) verify(tokenString, typ string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != typ {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
