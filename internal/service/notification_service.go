package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/domain"
	"github.com/donorhub/notify-pipeline/internal/queue"
	"github.com/donorhub/notify-pipeline/internal/repository"
)

// deadLetterListLimit caps the operator dead-letter view.
const deadLetterListLimit = 200

// NotificationService is the seam between the HTTP surface and the pipeline:
// producers enqueue jobs through it, operators query records and
// dead-lettered jobs through it. HTTP handlers depend on this service, not
// on the queue or repository directly.
type NotificationService struct {
	repo   repository.NotificationRepository
	q      queue.Queue
	logger *zap.Logger
}

func NewNotificationService(
	repo repository.NotificationRepository,
	q queue.Queue,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{repo: repo, q: q, logger: logger}
}

// Enqueue accepts a job on the producer boundary. The call either succeeds
// (job durably accepted, id returned) or fails loudly with
// domain.ErrQueueUnavailable wrapped in the error chain; there is no
// half-accepted state for the producer to reason about.
func (s *NotificationService) Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	id, err := s.q.Enqueue(ctx, req.Type, req.Payload)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("job enqueued",
		zap.String("job_id", id),
		zap.String("job_type", req.Type),
	)
	return id, nil
}

// ListDeadLettered surfaces terminally failed jobs for operator inspection.
func (s *NotificationService) ListDeadLettered(ctx context.Context) ([]*domain.Job, error) {
	return s.q.ListDeadLettered(ctx, deadLetterListLimit)
}

func (s *NotificationService) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *NotificationService) ListNotifications(ctx context.Context, filter domain.ListFilter) ([]*domain.Notification, int, error) {
	return s.repo.List(ctx, filter)
}

// QueueStats returns the queue-depth snapshot for the JSON metrics endpoint.
func (s *NotificationService) QueueStats(ctx context.Context) (queue.Stats, error) {
	return s.q.Stats(ctx)
}
