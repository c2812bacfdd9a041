package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trivia-app/backend/internal/tenant"
)

// Role represents a user's role inside their organization.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleFacilitator Role = "facilitator"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleFacilitator, RoleAdmin:
		return true
	}
	return false
}

// User represents a platform user. OrganizationID is fixed at creation.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	PasswordHash   string    `json:"-"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID             uuid.UUID     `json:"id"`
	Email          string        `json:"email"`
	Name           string        `json:"name"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	Role           Role          `json:"role"`
	CreatedAt      time.Time     `json:"created_at"`
	Organization   *Organization `json:"organization,omitempty"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
		CreatedAt:      u.CreatedAt,
	}
}

// Roles returns the role claim carried in access tokens.
func (u *User) Roles() []string {
	return []string{string(u.Role)}
}

func (u *User) PrimaryKey() uuid.UUID         { return u.ID }
func (u *User) TenantID() uuid.UUID           { return u.OrganizationID }
func (u *User) AssignTenant(orgID uuid.UUID)  { u.OrganizationID = orgID }
func (u *User) AssignPrimaryKey(id uuid.UUID) { u.ID = id }

// Clone returns a copy of u.
func (u *User) Clone() *User {
	cp := *u
	return &cp
}

// ApplyPatch sets the mutable user columns named in patch.
func (u *User) ApplyPatch(patch tenant.Patch) error {
	for k, v := range patch {
		s, ok := stringValue(v)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", tenant.ErrUnknownField, k)
		}
		switch k {
		case "email":
			u.Email = s
		case "name":
			u.Name = s
		case "role":
			u.Role = Role(s)
		default:
			return fmt.Errorf("%w: %s", tenant.ErrUnknownField, k)
		}
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case Role:
		return string(s), true
	}
	return "", false
}
