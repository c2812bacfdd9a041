package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	// WriteWait bounds a single frame write.
	WriteWait = 10 * time.Second
	// SendBuffer is the per-client outbound queue size.
	SendBuffer = 256

	relayPublishTimeout   = 5 * time.Second
	relaySubscribeTimeout = 5 * time.Second
)

// SessionKey identifies a live session. Sessions with the same id in
// different organizations never share members.
type SessionKey struct {
	OrganizationID uuid.UUID
	SessionID      string
}

// Activity describes a join or leave, reported after the hub lock is released.
type Activity struct {
	Key              SessionKey
	UserID           uuid.UUID
	Event            models.ParticipationEvent
	ParticipantCount int
	At               time.Time
}

// ActivityHandler receives join and leave activity (e.g. for the session log).
type ActivityHandler func(Activity)

// Relay carries passthrough messages between server instances.
type Relay interface {
	Publish(ctx context.Context, key SessionKey, frame []byte) error
	// Subscribe returns once the subscription is live or ctx is done.
	Subscribe(ctx context.Context, key SessionKey, handler func(frame []byte)) (cancel func(), err error)
}

type session struct {
	members     map[*Client]struct{}
	unsubscribe func()
}

// Hub maintains (organization, session) -> set of connections and broadcasts
// messages. One mutex guards membership and enqueueing; socket writes happen
// in each client's write pump.
type Hub struct {
	mu         sync.Mutex
	sessions   map[SessionKey]*session
	logger     *zap.Logger
	relay      Relay
	onActivity ActivityHandler
}

// NewHub creates a new WebSocket hub. relay may be nil for a single instance.
func NewHub(logger *zap.Logger, relay Relay) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[SessionKey]*session),
		logger:   logger,
		relay:    relay,
	}
}

// SetActivityHandler sets the callback for joins and leaves.
func (h *Hub) SetActivityHandler(fn ActivityHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onActivity = fn
}

// Join adds c to its session, creating the session if needed. c alone gets
// the connection ack; the other members get user_joined. A new session is
// subscribed to the relay after the hub lock is released.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	s, ok := h.sessions[c.Key]
	if !ok {
		s = &session{members: make(map[*Client]struct{})}
		h.sessions[c.Key] = s
	}
	s.members[c] = struct{}{}
	count := len(s.members)
	activity := []Activity{h.activity(c, models.ParticipationJoined, count)}

	if !enqueue(c, h.encode(ConnectionAck{SessionID: c.Key.SessionID, UserID: c.UserID})) {
		activity = append(activity, h.removeLocked(c)...)
	} else {
		joined := h.encode(Presence{Type: TypeUserJoined, SessionID: c.Key.SessionID, UserID: c.UserID, ParticipantCount: count})
		activity = append(activity, h.broadcastLocked(s, joined, c)...)
	}
	onActivity := h.onActivity
	h.mu.Unlock()

	h.logger.Debug("client joined session",
		zap.String("client_id", c.ID),
		zap.String("organization_id", c.Key.OrganizationID.String()),
		zap.String("session_id", c.Key.SessionID),
		zap.Int("participant_count", count))
	notify(onActivity, activity)

	if !ok {
		h.subscribe(c.Key, s)
	}
}

// Leave removes c from its session. It reports whether c was still a member;
// only the first call for a client has any effect.
func (h *Hub) Leave(c *Client) bool {
	h.mu.Lock()
	activity := h.removeLocked(c)
	onActivity := h.onActivity
	h.mu.Unlock()

	if len(activity) == 0 {
		return false
	}
	h.logger.Debug("client left session",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.Key.SessionID))
	notify(onActivity, activity)
	return true
}

// Publish rebroadcasts an inbound message from c to every member of its
// session, c included. With a relay the message goes through Redis so members
// on other instances get it too.
func (h *Hub) Publish(c *Client, in Inbound) {
	frame := h.encode(Passthrough{Type: in.Type, SessionID: c.Key.SessionID, UserID: c.UserID, Data: in.Data})
	if frame == nil {
		return
	}

	h.mu.Lock()
	s, ok := h.sessions[c.Key]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := s.members[c]; !member {
		h.mu.Unlock()
		return
	}
	relayed := h.relay != nil && s.unsubscribe != nil
	h.mu.Unlock()

	if relayed {
		ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
		err := h.relay.Publish(ctx, c.Key, frame)
		cancel()
		if err == nil {
			return
		}
		h.logger.Warn("relay publish failed, delivering locally", zap.String("session_id", c.Key.SessionID), zap.Error(err))
	}
	h.deliver(c.Key, frame)
}

// deliver enqueues frame to every local member of key.
func (h *Hub) deliver(key SessionKey, frame []byte) {
	h.mu.Lock()
	s, ok := h.sessions[key]
	if !ok {
		h.mu.Unlock()
		return
	}
	activity := h.broadcastLocked(s, frame, nil)
	onActivity := h.onActivity
	h.mu.Unlock()
	notify(onActivity, activity)
}

// ParticipantCount returns the number of local members of a session.
func (h *Hub) ParticipantCount(orgID uuid.UUID, sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[SessionKey{OrganizationID: orgID, SessionID: sessionID}]
	if !ok {
		return 0
	}
	return len(s.members)
}

// SessionCount returns the number of sessions with at least one local member.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown disconnects every client without presence events.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, s := range h.sessions {
		for c := range s.members {
			close(c.send)
		}
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		delete(h.sessions, key)
	}
}

// subscribe attaches a relay subscription to s. If s was removed while the
// subscription was being set up, the subscription is cancelled.
func (h *Hub) subscribe(key SessionKey, s *session) {
	if h.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relaySubscribeTimeout)
	unsubscribe, err := h.relay.Subscribe(ctx, key, func(frame []byte) {
		h.deliver(key, frame)
	})
	cancel()
	if err != nil {
		h.logger.Warn("relay subscribe failed", zap.String("session_id", key.SessionID), zap.Error(err))
		return
	}

	h.mu.Lock()
	if h.sessions[key] == s && s.unsubscribe == nil {
		s.unsubscribe = unsubscribe
		unsubscribe = nil
	}
	h.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// broadcastLocked enqueues frame to every member of s except skip. Members
// whose queue is full are removed.
func (h *Hub) broadcastLocked(s *session, frame []byte, skip *Client) []Activity {
	var dropped []*Client
	for c := range s.members {
		if c == skip {
			continue
		}
		if !enqueue(c, frame) {
			dropped = append(dropped, c)
		}
	}
	var activity []Activity
	for _, c := range dropped {
		h.logger.Warn("client send buffer full, dropping",
			zap.String("client_id", c.ID),
			zap.String("session_id", c.Key.SessionID))
		activity = append(activity, h.removeLocked(c)...)
	}
	return activity
}

// removeLocked removes c if it is still a member, closes its queue and tells
// the remaining members.
func (h *Hub) removeLocked(c *Client) []Activity {
	s, ok := h.sessions[c.Key]
	if !ok {
		return nil
	}
	if _, member := s.members[c]; !member {
		return nil
	}
	delete(s.members, c)
	close(c.send)

	count := len(s.members)
	activity := []Activity{h.activity(c, models.ParticipationLeft, count)}
	if count == 0 {
		delete(h.sessions, c.Key)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		return activity
	}
	left := h.encode(Presence{Type: TypeUserLeft, SessionID: c.Key.SessionID, UserID: c.UserID, ParticipantCount: count})
	return append(activity, h.broadcastLocked(s, left, nil)...)
}

func (h *Hub) activity(c *Client, event models.ParticipationEvent, count int) Activity {
	return Activity{Key: c.Key, UserID: c.UserID, Event: event, ParticipantCount: count, At: time.Now().UTC()}
}

func (h *Hub) encode(m Message) []byte {
	frame, err := Encode(m)
	if err != nil {
		h.logger.Error("encode message", zap.Error(err))
		return nil
	}
	return frame
}

func enqueue(c *Client, frame []byte) bool {
	if frame == nil {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func notify(fn ActivityHandler, activity []Activity) {
	if fn == nil {
		return
	}
	for _, a := range activity {
		fn(a)
	}
}
