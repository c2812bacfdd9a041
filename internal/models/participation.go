package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trivia-app/backend/internal/tenant"
)

// ParticipationEvent is what happened to a member of a live session.
type ParticipationEvent string

const (
	ParticipationJoined ParticipationEvent = "joined"
	ParticipationLeft   ParticipationEvent = "left"
)

// Participation records one join or leave in a live session. Rows are append-only.
type Participation struct {
	ID               uuid.UUID          `json:"id"`
	OrganizationID   uuid.UUID          `json:"organization_id"`
	SessionID        string             `json:"session_id"`
	UserID           uuid.UUID          `json:"user_id"`
	Event            ParticipationEvent `json:"event"`
	ParticipantCount int                `json:"participant_count"`
	CreatedAt        time.Time          `json:"created_at"`
}

func (p *Participation) PrimaryKey() uuid.UUID         { return p.ID }
func (p *Participation) TenantID() uuid.UUID           { return p.OrganizationID }
func (p *Participation) AssignTenant(orgID uuid.UUID)  { p.OrganizationID = orgID }
func (p *Participation) AssignPrimaryKey(id uuid.UUID) { p.ID = id }

// Clone returns a copy of p.
func (p *Participation) Clone() *Participation {
	cp := *p
	return &cp
}

// ApplyPatch rejects every change; participation rows are never edited.
func (p *Participation) ApplyPatch(patch tenant.Patch) error {
	for k := range patch {
		return fmt.Errorf("%w: %s", tenant.ErrUnknownField, k)
	}
	return nil
}
