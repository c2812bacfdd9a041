package realtime

import (
	"github.com/gin-gonic/gin"

	"github.com/trivia-app/backend/internal/auth"
	"github.com/trivia-app/backend/pkg/response"
)

// ParticipantsResponse is the body of GET /sessions/:session_id/participants.
type ParticipantsResponse struct {
	SessionID        string `json:"session_id"`
	ParticipantCount int    `json:"participant_count"`
}

// Participants returns the live member count of a session in the caller's
// organization on this instance.
func Participants(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")
		response.OK(c, ParticipantsResponse{
			SessionID:        sessionID,
			ParticipantCount: hub.ParticipantCount(auth.CurrentOrganizationID(c), sessionID),
		})
	}
}
