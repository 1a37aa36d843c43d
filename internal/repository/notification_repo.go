package repository

import (
	"context"

	"github.com/donorhub/notify-pipeline/internal/domain"
)

// NotificationRepository defines all persistence operations for notification
// records. The pgx implementation is in pg_notification_repo.go.
// Tests use a hand-written mock (mock_notification_repo.go).
//
// Create is idempotent on id: the record id is derived from the job id, so a
// job redelivered after a crash between record-write and ack inserts nothing
// the second time instead of duplicating the record.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Notification, int, error)
	MarkDelivered(ctx context.Context, id string) error
}
