package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidJobType   = errors.New("job type must not be empty")
	ErrQueueUnavailable = errors.New("job queue unavailable")
)
