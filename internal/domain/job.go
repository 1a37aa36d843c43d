package domain

import "time"

// Job type discriminators recognised by the worker.
// The namespace is open: producers may enqueue any type string, but a job
// whose type has no registered handler is dead-lettered on first delivery.
const (
	JobTypeDonationSuccess = "DONATION_SUCCESS"
)

// JobState tracks the lifecycle of a queued job.
type JobState string

const (
	// JobStateWaiting: enqueued, eligible for delivery.
	JobStateWaiting JobState = "waiting"
	// JobStateActive: claimed by exactly one worker, invisible to others
	// until acked, failed, or the visibility timeout lapses.
	JobStateActive JobState = "active"
	// JobStateFailed: a retryable failure; redelivered once run_at passes.
	JobStateFailed JobState = "failed"
	// JobStateCompleted and JobStateDeadLettered are terminal.
	JobStateCompleted    JobState = "completed"
	JobStateDeadLettered JobState = "dead_lettered"
)

// Terminal reports whether no further transitions are allowed.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateDeadLettered
}

// Job is a unit of deferred work on the durable queue.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	State       JobState       `json:"state"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	RunAt       time.Time      `json:"run_at"`
	LastError   *string        `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// EnqueueRequest is the inbound payload on the producer boundary.
type EnqueueRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func (r *EnqueueRequest) Validate() error {
	if r.Type == "" {
		return ErrInvalidJobType
	}
	return nil
}
