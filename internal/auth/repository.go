package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/internal/users"
)

// Directory holds the user lookups that are global by design: login knows
// only an email, and a refresh token carries only a subject.
type Directory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Repository implements Directory on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByEmail returns a user by email. Emails are unique across organizations.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, strings.Join(users.Columns, ", "))
	return scanDirectory(r.pool.QueryRow(ctx, q, normalizeEmail(email)))
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, strings.Join(users.Columns, ", "))
	return scanDirectory(r.pool.QueryRow(ctx, q, id))
}

func scanDirectory(row pgx.Row) (*models.User, error) {
	u, err := users.ScanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	return u, err
}

// MemoryDirectory implements Directory over a users memory store.
type MemoryDirectory struct {
	store *tenant.MemoryStore[*models.User]
}

// NewMemoryDirectory wraps store.
func NewMemoryDirectory(store *tenant.MemoryStore[*models.User]) *MemoryDirectory {
	return &MemoryDirectory{store: store}
}

// GetByEmail implements Directory.
func (d *MemoryDirectory) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return d.find(func(u *models.User) bool { return u.Email == normalizeEmail(email) })
}

// GetByID implements Directory.
func (d *MemoryDirectory) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return d.find(func(u *models.User) bool { return u.ID == id })
}

func (d *MemoryDirectory) find(match func(*models.User) bool) (*models.User, error) {
	var found *models.User
	d.store.Each(func(u *models.User) bool {
		if match(u) {
			found = u
			return false
		}
		return true
	})
	if found == nil {
		return nil, tenant.ErrNotFound
	}
	return found, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
