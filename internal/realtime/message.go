package realtime

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Message types the hub emits on its own behalf.
const (
	TypeConnection = "connection"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	// TypeDefault is used for inbound messages without a type.
	TypeDefault = "message"

	connectedText = "Connected to session"
)

// ErrInvalidFrame is returned for inbound frames that are not JSON objects.
var ErrInvalidFrame = errors.New("frame is not a JSON object")

// Envelope is the JSON object written to clients. Which fields are set
// depends on the message kind.
type Envelope struct {
	Type             string          `json:"type"`
	Message          string          `json:"message,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	SessionID        string          `json:"session_id"`
	ParticipantCount int             `json:"participant_count,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}

// Message is implemented by every outbound message kind.
type Message interface {
	Envelope() Envelope
}

// ConnectionAck is sent to a client alone once it has joined.
type ConnectionAck struct {
	SessionID string
	UserID    uuid.UUID
}

func (m ConnectionAck) Envelope() Envelope {
	return Envelope{
		Type:      TypeConnection,
		Message:   connectedText,
		SessionID: m.SessionID,
		UserID:    m.UserID.String(),
	}
}

// Presence announces a join or leave to the other members of a session.
type Presence struct {
	Type             string
	SessionID        string
	UserID           uuid.UUID
	ParticipantCount int
}

func (m Presence) Envelope() Envelope {
	return Envelope{
		Type:             m.Type,
		SessionID:        m.SessionID,
		UserID:           m.UserID.String(),
		ParticipantCount: m.ParticipantCount,
	}
}

// Passthrough is a client message rebroadcast to its session, stamped with
// the sender's identity.
type Passthrough struct {
	Type      string
	SessionID string
	UserID    uuid.UUID
	Data      json.RawMessage
}

func (m Passthrough) Envelope() Envelope {
	data := m.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	typ := m.Type
	if typ == "" {
		typ = TypeDefault
	}
	return Envelope{
		Type:      typ,
		SessionID: m.SessionID,
		UserID:    m.UserID.String(),
		Data:      data,
	}
}

// Encode renders m as a JSON frame.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m.Envelope())
}

// Inbound is what clients send: {"type": "...", "data": ...}. Other keys are ignored.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseInbound decodes a client frame.
func ParseInbound(raw []byte) (Inbound, error) {
	var in Inbound
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return in, ErrInvalidFrame
	}
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return in, errors.Join(ErrInvalidFrame, err)
	}
	return in, nil
}
