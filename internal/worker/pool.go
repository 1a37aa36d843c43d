package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/jobs"
	"github.com/donorhub/notify-pipeline/internal/queue"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnCompleted    func(jobType string, latency time.Duration)
	OnFailed       func(jobType string)
	OnDeadLettered func(jobType string)
}

// Pool manages the lifecycle of all workers. All workers share the same
// queue; the queue's claim mutual exclusion is what makes running them in
// parallel safe without any further locking.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates size identical workers over the shared queue.
func NewPool(
	size int,
	q queue.Queue,
	registry *jobs.Registry,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(
			i, q, registry,
			logger.With(zap.Int("worker_id", i)),
			hooks,
		)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines.
// The provided ctx is forwarded to every worker; cancelling it
// triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context to ensure in-flight jobs finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
