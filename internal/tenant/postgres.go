package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Table describes how a tenant-owned entity maps onto a PostgreSQL table.
type Table[T Entity] struct {
	Name string
	// Columns is the select list, in the order Scan expects.
	Columns []string
	// Mutable lists the columns a patch may set.
	Mutable []string
	// Touch, if set, is assigned NOW() on every update.
	Touch string
	Scan  func(row pgx.Row) (T, error)
	// Insert returns the columns and values written for a new row.
	Insert func(entity T) (columns []string, values []any)
}

// PGStore implements Store on PostgreSQL.
type PGStore[T Entity] struct {
	db      DB
	table   Table[T]
	mutable map[string]bool
	selects string
	from    string
}

// NewPGStore validates table and returns a store over db.
func NewPGStore[T Entity](db DB, table Table[T]) (*PGStore[T], error) {
	if table.Name == "" || table.Scan == nil || table.Insert == nil {
		return nil, fmt.Errorf("%w: %q is incomplete", ErrInvalidTable, table.Name)
	}
	if !contains(table.Columns, ColumnID) || !contains(table.Columns, ColumnOrganizationID) {
		return nil, fmt.Errorf("%w: %q must select %s and %s", ErrInvalidTable, table.Name, ColumnID, ColumnOrganizationID)
	}
	mutable := make(map[string]bool, len(table.Mutable))
	for _, col := range table.Mutable {
		switch col {
		case ColumnID, ColumnOrganizationID, ColumnCreatedAt:
			return nil, fmt.Errorf("%w: %q lists %s as mutable", ErrInvalidTable, table.Name, col)
		}
		mutable[col] = true
	}
	quoted := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
	}
	return &PGStore[T]{
		db:      db,
		table:   table,
		mutable: mutable,
		selects: strings.Join(quoted, ", "),
		from:    pgx.Identifier{table.Name}.Sanitize(),
	}, nil
}

// FindOne implements Store.
func (s *PGStore[T]) FindOne(ctx context.Context, id, orgID uuid.UUID) (T, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND organization_id = $2`, s.selects, s.from)
	return s.scanOne(s.db.QueryRow(ctx, q, id, orgID))
}

// FindMany implements Store.
func (s *PGStore[T]) FindMany(ctx context.Context, orgID uuid.UUID, offset, limit int) ([]T, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE organization_id = $1 ORDER BY id LIMIT $2 OFFSET $3`, s.selects, s.from)
	rows, err := s.db.Query(ctx, q, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]T, 0)
	for rows.Next() {
		e, err := s.table.Scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Insert implements Store.
func (s *PGStore[T]) Insert(ctx context.Context, entity T) (T, error) {
	cols, vals := s.table.Insert(entity)
	if !contains(cols, ColumnOrganizationID) {
		cols = append(cols, ColumnOrganizationID)
		vals = append(vals, entity.TenantID())
	}
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, col := range cols {
		names[i] = pgx.Identifier{col}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
		s.from, strings.Join(names, ", "), strings.Join(params, ", "), s.selects)
	return s.scanOne(s.db.QueryRow(ctx, q, vals...))
}

// UpdateWhere implements Store.
func (s *PGStore[T]) UpdateWhere(ctx context.Context, id, orgID uuid.UUID, patch Patch) (T, error) {
	var zero T
	if len(patch) == 0 {
		return s.FindOne(ctx, id, orgID)
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if !s.mutable[k] {
			return zero, fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []any{id, orgID}
	sets := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, patch[k])
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), len(args)))
	}
	if s.table.Touch != "" {
		sets = append(sets, pgx.Identifier{s.table.Touch}.Sanitize()+" = NOW()")
	}
	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1 AND organization_id = $2 RETURNING %s`,
		s.from, strings.Join(sets, ", "), s.selects)
	return s.scanOne(s.db.QueryRow(ctx, q, args...))
}

// DeleteWhere implements Store.
func (s *PGStore[T]) DeleteWhere(ctx context.Context, id, orgID uuid.UUID) (bool, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND organization_id = $2`, s.from)
	tag, err := s.db.Exec(ctx, q, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountWhere implements Store.
func (s *PGStore[T]) CountWhere(ctx context.Context, orgID uuid.UUID) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE organization_id = $1`, s.from)
	var n int
	if err := s.db.QueryRow(ctx, q, orgID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PGStore[T]) scanOne(row pgx.Row) (T, error) {
	var zero T
	e, err := s.table.Scan(row)
	if err != nil {
		return zero, translate(err)
	}
	return e, nil
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
