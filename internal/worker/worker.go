package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/pkg/queue"
)

// ErrInvalidJob marks jobs that can never succeed; they skip retries.
var ErrInvalidJob = errors.New("invalid job")

// JobSource is the queue the recorder consumes.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) error
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
}

// ActivityRecorder persists session activity jobs as participation rows.
type ActivityRecorder struct {
	guard   *tenant.Guard[*models.Participation]
	queue   JobSource
	logger  *zap.Logger
	backoff time.Duration
}

// NewActivityRecorder creates a session activity processor.
func NewActivityRecorder(guard *tenant.Guard[*models.Participation], q JobSource, logger *zap.Logger) *ActivityRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityRecorder{guard: guard, queue: q, logger: logger, backoff: queue.RetryBackoff}
}

// SetBackoff overrides the pause after a failed job or dequeue error.
func (p *ActivityRecorder) SetBackoff(d time.Duration) {
	p.backoff = d
}

// Process executes one session activity job. Replays of a job that was
// already stored are not errors.
func (p *ActivityRecorder) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionActivity {
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, job.Type)
	}
	var payload queue.SessionActivityPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", ErrInvalidJob, err)
	}
	event := models.ParticipationEvent(payload.Event)
	if event != models.ParticipationJoined && event != models.ParticipationLeft {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidJob, payload.Event)
	}
	if payload.OrganizationID == uuid.Nil || payload.UserID == uuid.Nil || payload.SessionID == "" {
		return fmt.Errorf("%w: missing organization, user or session", ErrInvalidJob)
	}

	row := &models.Participation{
		SessionID:        payload.SessionID,
		UserID:           payload.UserID,
		Event:            event,
		ParticipantCount: payload.ParticipantCount,
		CreatedAt:        payload.OccurredAt,
	}
	if id, err := uuid.Parse(job.ID); err == nil {
		row.ID = id
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := p.guard.Create(ctx, row, payload.OrganizationID)
	if errors.Is(err, tenant.ErrConflict) {
		p.logger.Debug("session activity already recorded", zap.String("job_id", job.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("store participation: %w", err)
	}
	p.logger.Debug("session activity recorded",
		zap.String("job_id", job.ID),
		zap.String("organization_id", payload.OrganizationID.String()),
		zap.String("session_id", payload.SessionID),
		zap.String("event", payload.Event))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ActivityRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("session activity worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if errors.Is(err, ErrInvalidJob) {
				if dlqErr := p.queue.DeadLetter(ctx, job, err); dlqErr != nil {
					p.logger.Error("dead letter failed", zap.Error(dlqErr))
				}
				continue
			}
			if reErr := p.queue.Retry(ctx, job, err); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ActivityRecorder) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
