package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/auth"
	"github.com/trivia-app/backend/internal/models"
)

const (
	maxMessageSize = 65536

	// CloseReasonUnauthorized is the close reason for every admission failure.
	CloseReasonUnauthorized = "unauthorized"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// IdentityResolver turns the connection token into a user.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

// Client represents a single WebSocket connection in a session.
type Client struct {
	ID       string
	Key      SessionKey
	UserID   uuid.UUID
	Role     models.Role
	JoinedAt time.Time
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	logger   *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, user *models.User, sessionID string, logger *zap.Logger) *Client {
	return &Client{
		ID:       uuid.New().String(),
		Key:      SessionKey{OrganizationID: user.OrganizationID, SessionID: sessionID},
		UserID:   user.ID,
		Role:     user.Role,
		JoinedAt: time.Now(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, SendBuffer),
		logger:   logger,
	}
}

// ServeWs handles GET /ws/:session_id?token=. The handshake always completes;
// admission failures are reported as a policy-violation close.
func ServeWs(hub *Hub, resolver IdentityResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sessionID := c.Param("session_id")
		user, err := admit(c.Request.Context(), resolver, sessionID, c.Query("token"))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				logger.Error("websocket admission failed", zap.Error(err))
			}
			reject(conn)
			return
		}

		client := newClient(hub, conn, user, sessionID, logger)
		hub.Join(client)
		go client.writePump()
		client.readPump()
	}
}

func admit(ctx context.Context, resolver IdentityResolver, sessionID, token string) (*models.User, error) {
	if sessionID == "" || token == "" {
		return nil, auth.ErrUnauthorized
	}
	return resolver.Resolve(ctx, token)
}

func reject(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, CloseReasonUnauthorized)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteWait))
	_ = conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		in, err := ParseInbound(raw)
		if err != nil {
			c.logger.Debug("closing on invalid frame", zap.String("client_id", c.ID), zap.Error(err))
			msg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid message")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteWait))
			return
		}
		c.hub.Publish(c, in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
