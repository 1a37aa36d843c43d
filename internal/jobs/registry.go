package jobs

import (
	"context"

	"github.com/donorhub/notify-pipeline/internal/domain"
)

// Handler executes one job type. A returned error marks the attempt failed
// and hands the job back to the queue's retry machinery; the worker never
// lets a handler error escape the processing loop.
type Handler interface {
	// Type is the job-type discriminator this handler serves.
	Type() string
	// Handle executes the job. Implementations must order the durable
	// record write before any best-effort side effect (broadcast, email),
	// since a failure after the record write does not roll the record back.
	Handle(ctx context.Context, job *domain.Job) error
}

// Registry maps job types to handlers. It is populated once at startup and
// read-only afterwards, so no locking is needed on the dispatch path.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Type()] = h
	}
	return r
}

// Get returns the handler for jobType, or false when none is registered —
// which the worker treats as a permanent, non-retryable failure.
func (r *Registry) Get(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
