package tenant

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Record is what MemoryStore needs beyond Entity.
type Record[T any] interface {
	Entity
	AssignPrimaryKey(id uuid.UUID)
	ApplyPatch(patch Patch) error
	Clone() T
}

// MemoryOption configures a MemoryStore.
type MemoryOption[T Record[T]] func(*MemoryStore[T])

// WithUniqueKey rejects inserts and updates that would give two rows the same key.
func WithUniqueKey[T Record[T]](key func(T) string) MemoryOption[T] {
	return func(s *MemoryStore[T]) { s.unique = key }
}

// MemoryStore implements Store in process memory. Rows are copied on the way
// in and out so callers never alias stored state.
type MemoryStore[T Record[T]] struct {
	mu     sync.RWMutex
	rows   map[uuid.UUID]T
	unique func(T) string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore[T Record[T]](opts ...MemoryOption[T]) *MemoryStore[T] {
	s := &MemoryStore[T]{rows: make(map[uuid.UUID]T)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindOne implements Store.
func (s *MemoryStore[T]) FindOne(_ context.Context, id, orgID uuid.UUID) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero T
	row, ok := s.rows[id]
	if !ok || row.TenantID() != orgID {
		return zero, ErrNotFound
	}
	return row.Clone(), nil
}

// FindMany implements Store.
func (s *MemoryStore[T]) FindMany(_ context.Context, orgID uuid.UUID, offset, limit int) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]T, 0)
	for _, row := range s.rows {
		if row.TenantID() == orgID {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].PrimaryKey(), matched[j].PrimaryKey()
		return bytes.Compare(a[:], b[:]) < 0
	})
	out := make([]T, 0)
	for i := offset; i < len(matched) && len(out) < limit; i++ {
		out = append(out, matched[i].Clone())
	}
	return out, nil
}

// Insert implements Store.
func (s *MemoryStore[T]) Insert(_ context.Context, entity T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	row := entity.Clone()
	if row.PrimaryKey() == uuid.Nil {
		row.AssignPrimaryKey(uuid.New())
	}
	if _, exists := s.rows[row.PrimaryKey()]; exists {
		return zero, fmt.Errorf("%w: id", ErrConflict)
	}
	if err := s.checkUnique(row); err != nil {
		return zero, err
	}
	s.rows[row.PrimaryKey()] = row
	return row.Clone(), nil
}

// UpdateWhere implements Store.
func (s *MemoryStore[T]) UpdateWhere(_ context.Context, id, orgID uuid.UUID, patch Patch) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	current, ok := s.rows[id]
	if !ok || current.TenantID() != orgID {
		return zero, ErrNotFound
	}
	next := current.Clone()
	if err := next.ApplyPatch(patch); err != nil {
		return zero, err
	}
	if err := s.checkUnique(next); err != nil {
		return zero, err
	}
	s.rows[id] = next
	return next.Clone(), nil
}

// DeleteWhere implements Store.
func (s *MemoryStore[T]) DeleteWhere(_ context.Context, id, orgID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.TenantID() != orgID {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

// CountWhere implements Store.
func (s *MemoryStore[T]) CountWhere(_ context.Context, orgID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, row := range s.rows {
		if row.TenantID() == orgID {
			n++
		}
	}
	return n, nil
}

// Each calls fn for every stored row regardless of organization. It exists
// for lookups that are global by design, such as login by email.
func (s *MemoryStore[T]) Each(fn func(T) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if !fn(row.Clone()) {
			return
		}
	}
}

func (s *MemoryStore[T]) checkUnique(row T) error {
	if s.unique == nil {
		return nil
	}
	key := s.unique(row)
	for id, other := range s.rows {
		if id != row.PrimaryKey() && s.unique(other) == key {
			return fmt.Errorf("%w: unique key", ErrConflict)
		}
	}
	return nil
}
