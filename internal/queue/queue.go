package queue

import (
	"context"
	"errors"
	"time"

	"github.com/donorhub/notify-pipeline/internal/domain"
)

var (
	// ErrJobNotActive is returned by Ack/Fail/DeadLetter when the job is not
	// currently held Active — typically because the visibility timeout lapsed
	// and the job was redelivered to another worker.
	ErrJobNotActive = errors.New("job is not active")
)

// Queue is the durable job queue. Delivery is at-least-once: a dequeued job
// is invisible to other consumers until it is acked, failed, or its
// visibility timeout lapses, at which point it becomes claimable again.
//
// The Postgres implementation is in pg_queue.go; tests and local development
// use the in-memory implementation in memory_queue.go, which carries the
// same state machine.
type Queue interface {
	// Enqueue creates a job in state waiting and returns its id.
	// Wraps domain.ErrQueueUnavailable when the backing store is unreachable.
	Enqueue(ctx context.Context, jobType string, payload map[string]any) (string, error)

	// Dequeue blocks until a job is claimable or ctx is cancelled.
	// Claiming atomically transitions the job to Active; at most one caller
	// ever holds a given job Active at a time.
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Ack transitions Active → Completed.
	Ack(ctx context.Context, id string) error

	// Fail records a handler failure: attempts+1, then either a delayed
	// retry (exponential backoff) or, once attempts reach max_attempts,
	// the dead-letter state.
	Fail(ctx context.Context, id string, cause error) error

	// DeadLetter moves an Active job straight to the terminal dead-letter
	// state. Used for permanent failures (e.g. no handler registered for
	// the job type) where retrying cannot help.
	DeadLetter(ctx context.Context, id string, reason string) error

	// ListDeadLettered returns dead-lettered jobs for operator inspection,
	// most recent first.
	ListDeadLettered(ctx context.Context, limit int) ([]*domain.Job, error)

	// Stats returns a point-in-time count of jobs per state.
	Stats(ctx context.Context) (Stats, error)
}

// Stats is a queue-depth snapshot keyed by job state.
type Stats struct {
	Waiting      int `json:"waiting"`
	Active       int `json:"active"`
	Failed       int `json:"failed"`
	Completed    int `json:"completed"`
	DeadLettered int `json:"dead_lettered"`
}

// Options tune delivery behaviour; zero values fall back to defaults.
type Options struct {
	// MaxAttempts is the delivery budget before a job is dead-lettered.
	MaxAttempts int
	// VisibilityTimeout bounds how long a worker may hold a job Active
	// before it is considered abandoned and redelivered.
	VisibilityTimeout time.Duration
	// PollInterval is the sleep between claim attempts when the queue is empty.
	PollInterval time.Duration
	// BackoffBase and BackoffMax bound the exponential retry delay:
	// attempt n waits min(BackoffBase * 2^n, BackoffMax).
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 5 * time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Minute
	}
	return o
}

// backoff returns the retry delay after the given number of completed attempts.
func (o Options) backoff(attempts int) time.Duration {
	d := o.BackoffBase
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= o.BackoffMax {
			return o.BackoffMax
		}
	}
	return d
}
