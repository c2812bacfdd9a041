// Package tenant scopes every read and write on organization-owned rows to
// a single organization.
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const (
	// ColumnID is the primary key column of every tenant-owned table.
	ColumnID = "id"
	// ColumnOrganizationID is the tenant column of every tenant-owned table.
	ColumnOrganizationID = "organization_id"
	// ColumnCreatedAt is never writable through a patch.
	ColumnCreatedAt = "created_at"

	// DefaultLimit is used when List is called with a non-positive limit.
	DefaultLimit = 100
	// MaxLimit caps a single List window.
	MaxLimit = 1000
)

var (
	// ErrNotFound is returned when no row matches both id and organization.
	// A row owned by another organization is reported the same way.
	ErrNotFound = errors.New("not found")
	// ErrMissingTenant is returned when an operation is called without an organization.
	ErrMissingTenant = errors.New("organization id required")
	// ErrUnknownField is returned when a patch names a column that cannot be updated.
	ErrUnknownField = errors.New("unknown or immutable field")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTable is returned at construction when a table is not tenant-scoped.
	ErrInvalidTable = errors.New("invalid tenant table")
)

// Entity is implemented by every row type owned by an organization.
type Entity interface {
	PrimaryKey() uuid.UUID
	TenantID() uuid.UUID
	AssignTenant(orgID uuid.UUID)
}

// Patch is a partial update keyed by column name.
type Patch map[string]any

// Store is the persistence collaborator behind a Guard. Every method takes the
// organization as an explicit predicate.
type Store[T Entity] interface {
	FindOne(ctx context.Context, id, orgID uuid.UUID) (T, error)
	FindMany(ctx context.Context, orgID uuid.UUID, offset, limit int) ([]T, error)
	Insert(ctx context.Context, entity T) (T, error)
	UpdateWhere(ctx context.Context, id, orgID uuid.UUID, patch Patch) (T, error)
	DeleteWhere(ctx context.Context, id, orgID uuid.UUID) (bool, error)
	CountWhere(ctx context.Context, orgID uuid.UUID) (int, error)
}

// Guard is the only way handlers reach tenant-owned rows. The organization
// passed to each method is authoritative; organization values carried in
// entities or patches are overwritten or discarded.
type Guard[T Entity] struct {
	store Store[T]
}

// NewGuard creates a guard over store.
func NewGuard[T Entity](store Store[T]) *Guard[T] {
	return &Guard[T]{store: store}
}

// Get returns the row with id owned by orgID.
func (g *Guard[T]) Get(ctx context.Context, id, orgID uuid.UUID) (T, error) {
	var zero T
	if orgID == uuid.Nil {
		return zero, ErrMissingTenant
	}
	return g.store.FindOne(ctx, id, orgID)
}

// List returns a window of rows owned by orgID ordered by primary key.
func (g *Guard[T]) List(ctx context.Context, orgID uuid.UUID, offset, limit int) ([]T, error) {
	if orgID == uuid.Nil {
		return nil, ErrMissingTenant
	}
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return g.store.FindMany(ctx, orgID, offset, limit)
}

// Create stamps entity with orgID and inserts it.
func (g *Guard[T]) Create(ctx context.Context, entity T, orgID uuid.UUID) (T, error) {
	var zero T
	if orgID == uuid.Nil {
		return zero, ErrMissingTenant
	}
	entity.AssignTenant(orgID)
	return g.store.Insert(ctx, entity)
}

// Update applies patch to the row with id owned by orgID. Keys that would
// move the row or rewrite its identity are dropped first.
func (g *Guard[T]) Update(ctx context.Context, id, orgID uuid.UUID, patch Patch) (T, error) {
	var zero T
	if orgID == uuid.Nil {
		return zero, ErrMissingTenant
	}
	return g.store.UpdateWhere(ctx, id, orgID, sanitize(patch))
}

// Delete removes the row with id owned by orgID and reports whether one existed.
func (g *Guard[T]) Delete(ctx context.Context, id, orgID uuid.UUID) (bool, error) {
	if orgID == uuid.Nil {
		return false, ErrMissingTenant
	}
	return g.store.DeleteWhere(ctx, id, orgID)
}

// Count returns the number of rows owned by orgID.
func (g *Guard[T]) Count(ctx context.Context, orgID uuid.UUID) (int, error) {
	if orgID == uuid.Nil {
		return 0, ErrMissingTenant
	}
	return g.store.CountWhere(ctx, orgID)
}

func sanitize(patch Patch) Patch {
	out := make(Patch, len(patch))
	for k, v := range patch {
		switch k {
		case ColumnID, ColumnOrganizationID, ColumnCreatedAt:
			continue
		}
		out[k] = v
	}
	return out
}
