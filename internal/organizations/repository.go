package organizations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
)

var (
	// ErrNotFound is returned when no organization matches.
	ErrNotFound = fmt.Errorf("organization %w", tenant.ErrNotFound)
	// ErrSlugTaken is returned when the slug already belongs to another organization.
	ErrSlugTaken = fmt.Errorf("organization slug: %w", tenant.ErrConflict)
)

// Store is the organization persistence used by handlers.
type Store interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Repository handles organization persistence. Organizations are the tenant
// root, so lookups here are not tenant-scoped.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts org and fills its generated fields.
func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	const q = `INSERT INTO organizations (name, slug, plan)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, org.Name, org.Slug, string(org.Plan)).Scan(&org.ID, &org.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrSlugTaken
	}
	return err
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT id, name, slug, plan, created_at FROM organizations WHERE id = $1`
	return scanOrganization(r.pool.QueryRow(ctx, q, id))
}

// GetBySlug returns an organization by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	const q = `SELECT id, name, slug, plan, created_at FROM organizations WHERE slug = $1`
	return scanOrganization(r.pool.QueryRow(ctx, q, slug))
}

// Delete removes an organization; users and activity rows cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	var plan string
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &plan, &org.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	org.Plan = models.Plan(plan)
	return &org, nil
}

// MemoryRepository implements Store in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	orgs map[uuid.UUID]models.Organization
}

// NewMemoryRepository creates an empty in-memory organization store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orgs: make(map[uuid.UUID]models.Organization)}
}

// Create implements Store.
func (m *MemoryRepository) Create(_ context.Context, org *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Slug == org.Slug {
			return ErrSlugTaken
		}
	}
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if org.Plan == "" {
		org.Plan = models.PlanFree
	}
	org.CreatedAt = time.Now().UTC()
	m.orgs[org.ID] = *org
	return nil
}

// GetByID implements Store.
func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

// GetBySlug implements Store.
func (m *MemoryRepository) GetBySlug(_ context.Context, slug string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orgs {
		if o.Slug == slug {
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

// Delete implements Store. It does not cascade; callers using the memory
// store own their user rows.
func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[id]; !ok {
		return false, nil
	}
	delete(m.orgs, id)
	return true, nil
}
