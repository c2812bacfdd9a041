package users

import (
	"github.com/jackc/pgx/v5"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
)

// Columns is the select list shared by the tenant store and the directory lookups.
var Columns = []string{"id", "email", "name", "password_hash", "organization_id", "role", "created_at", "updated_at"}

// Table maps models.User onto the users table.
var Table = tenant.Table[*models.User]{
	Name:    "users",
	Columns: Columns,
	Mutable: []string{"email", "name", "role"},
	Touch:   "updated_at",
	Scan:    ScanUser,
	Insert: func(u *models.User) ([]string, []any) {
		role := u.Role
		if role == "" {
			role = models.RoleParticipant
		}
		return []string{"email", "name", "password_hash", "organization_id", "role"},
			[]any{u.Email, u.Name, u.PasswordHash, u.OrganizationID, string(role)}
	},
}

// ScanUser reads one row selected with Columns.
func ScanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.OrganizationID, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// NewStore returns the PostgreSQL-backed user store.
func NewStore(db tenant.DB) (*tenant.PGStore[*models.User], error) {
	return tenant.NewPGStore(db, Table)
}

// NewMemoryStore returns an in-process user store with global email uniqueness.
func NewMemoryStore() *tenant.MemoryStore[*models.User] {
	return tenant.NewMemoryStore(tenant.WithUniqueKey(func(u *models.User) string { return u.Email }))
}
