package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "session:"

// relayPayload is the message published to Redis for cross-instance broadcast.
type relayPayload struct {
	Frame json.RawMessage `json:"frame"`
	At    int64           `json:"at"`
}

// RedisPubSub implements Relay using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for session messages.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// Channel returns the Redis channel for a session.
func Channel(key SessionKey) string {
	return channelPrefix + key.OrganizationID.String() + ":" + key.SessionID
}

// Publish publishes an encoded frame to the session's channel.
func (r *RedisPubSub) Publish(ctx context.Context, key SessionKey, frame []byte) error {
	body, err := json.Marshal(relayPayload{Frame: frame, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, Channel(key), body).Err()
}

// Subscribe subscribes to a session's channel and calls handler for each frame.
// ctx bounds the SUBSCRIBE round trip only. Returns a cancel function to stop
// the subscription.
func (r *RedisPubSub) Subscribe(ctx context.Context, key SessionKey, handler func(frame []byte)) (cancel func(), err error) {
	channel := Channel(key)
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err = pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ctx, cancelCtx := context.WithCancel(context.Background())
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p relayPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Warn("dropping malformed relay message", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(p.Frame)
			}
		}
	}()
	return cancelCtx, nil
}
