package sessionlog

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
)

// Columns is the select list for session_participations.
var Columns = []string{"id", "organization_id", "session_id", "user_id", "event", "participant_count", "created_at"}

// Table maps models.Participation onto session_participations. Rows are
// append-only, so nothing is mutable.
var Table = tenant.Table[*models.Participation]{
	Name:    "session_participations",
	Columns: Columns,
	Scan:    ScanParticipation,
	Insert: func(p *models.Participation) ([]string, []any) {
		cols := []string{"organization_id", "session_id", "user_id", "event", "participant_count", "created_at"}
		vals := []any{p.OrganizationID, p.SessionID, p.UserID, string(p.Event), p.ParticipantCount, p.CreatedAt}
		if p.ID != uuid.Nil {
			cols = append(cols, "id")
			vals = append(vals, p.ID)
		}
		return cols, vals
	},
}

// ScanParticipation reads one row selected with Columns.
func ScanParticipation(row pgx.Row) (*models.Participation, error) {
	var p models.Participation
	var event string
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.SessionID, &p.UserID, &event, &p.ParticipantCount, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Event = models.ParticipationEvent(event)
	return &p, nil
}

// NewStore returns the PostgreSQL-backed participation store.
func NewStore(db tenant.DB) (*tenant.PGStore[*models.Participation], error) {
	return tenant.NewPGStore(db, Table)
}

// NewMemoryStore returns an in-process participation store.
func NewMemoryStore() *tenant.MemoryStore[*models.Participation] {
	return tenant.NewMemoryStore[*models.Participation]()
}
