package sessionlog

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/realtime"
	"github.com/trivia-app/backend/pkg/queue"
)

const (
	enqueueTimeout = 2 * time.Second
	// DefaultActivityBuffer is the forwarder buffer used by the server.
	DefaultActivityBuffer = 1024
)

// ActivityEnqueuer is the queue side of the session log.
type ActivityEnqueuer interface {
	EnqueueSessionActivity(ctx context.Context, payload queue.SessionActivityPayload) error
}

// ActivityForwarder moves hub activity onto the activity queue from a single
// goroutine. Handle never blocks; activity arriving while the buffer is full
// is dropped and counted.
type ActivityForwarder struct {
	q       ActivityEnqueuer
	logger  *zap.Logger
	ch      chan realtime.Activity
	dropped atomic.Int64
}

// NewActivityForwarder creates a forwarder with room for buffer pending events.
func NewActivityForwarder(q ActivityEnqueuer, logger *zap.Logger, buffer int) *ActivityForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = DefaultActivityBuffer
	}
	return &ActivityForwarder{q: q, logger: logger, ch: make(chan realtime.Activity, buffer)}
}

// Handle is a realtime.ActivityHandler.
func (f *ActivityForwarder) Handle(a realtime.Activity) {
	select {
	case f.ch <- a:
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			f.logger.Warn("session activity buffer full, dropping",
				zap.String("session_id", a.Key.SessionID),
				zap.Int64("dropped_total", n))
		}
	}
}

// Dropped returns how many events Handle has discarded.
func (f *ActivityForwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Run enqueues buffered activity until ctx is cancelled, then flushes what is
// already buffered within one enqueue timeout.
func (f *ActivityForwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.flush()
			return
		case a := <-f.ch:
			enqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
			f.enqueue(enqCtx, a)
			cancel()
		}
	}
}

func (f *ActivityForwarder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	for {
		select {
		case a := <-f.ch:
			if !f.enqueue(ctx, a) {
				return
			}
		default:
			return
		}
	}
}

func (f *ActivityForwarder) enqueue(ctx context.Context, a realtime.Activity) bool {
	err := f.q.EnqueueSessionActivity(ctx, queue.SessionActivityPayload{
		OrganizationID:   a.Key.OrganizationID,
		SessionID:        a.Key.SessionID,
		UserID:           a.UserID,
		Event:            string(a.Event),
		ParticipantCount: a.ParticipantCount,
		OccurredAt:       a.At,
	})
	if err != nil {
		f.logger.Warn("enqueue session activity failed",
			zap.String("session_id", a.Key.SessionID),
			zap.String("user_id", a.UserID.String()),
			zap.Error(err))
		return false
	}
	return true
}
