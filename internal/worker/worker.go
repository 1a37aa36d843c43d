package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/domain"
	"github.com/donorhub/notify-pipeline/internal/jobs"
	"github.com/donorhub/notify-pipeline/internal/queue"
)

// dequeueRetryDelay is the pause after a queue error before the next
// dequeue attempt, so a down database is not hammered in a tight loop.
const dequeueRetryDelay = time.Second

// Worker is a single goroutine that continuously claims jobs from the
// durable queue, dispatches to the handler registered for the job type, and
// settles the outcome: ack on success, fail (retry/backoff) on handler
// error, immediate dead-letter when no handler exists for the type.
type Worker struct {
	id       int
	q        queue.Queue
	registry *jobs.Registry
	logger   *zap.Logger

	// Hooks for metrics — injected by the pool so the worker stays metrics-agnostic.
	onCompleted    func(jobType string, latency time.Duration)
	onFailed       func(jobType string)
	onDeadLettered func(jobType string)
}

// NewWorker constructs a worker. The hook funcs are optional (nil = no-op).
func NewWorker(
	id int,
	q queue.Queue,
	registry *jobs.Registry,
	logger *zap.Logger,
	hooks MetricHooks,
) *Worker {
	if hooks.OnCompleted == nil {
		hooks.OnCompleted = func(string, time.Duration) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func(string) {}
	}
	if hooks.OnDeadLettered == nil {
		hooks.OnDeadLettered = func(string) {}
	}
	return &Worker{
		id: id, q: q, registry: registry, logger: logger,
		onCompleted:    hooks.OnCompleted,
		onFailed:       hooks.OnFailed,
		onDeadLettered: hooks.OnDeadLettered,
	}
}

// Run blocks until ctx is cancelled, processing one job per iteration.
// Queue errors never crash the loop; they are logged and retried.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.Int("id", w.id))
	for {
		job, err := w.q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping", zap.Int("id", w.id))
				return
			}
			w.logger.Error("dequeue error", zap.Error(err))
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopping", zap.Int("id", w.id))
				return
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *domain.Job) {
	start := time.Now()
	log := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.Attempts+1),
	)

	handler, ok := w.registry.Get(job.Type)
	if !ok {
		// Permanent failure: retrying cannot conjure up a handler,
		// so the job is dead-lettered on its first and only delivery.
		log.Warn("no handler registered, dead-lettering")
		if err := w.q.DeadLetter(ctx, job.ID, "no handler registered for type "+job.Type); err != nil {
			w.logSettleError(log, "dead-letter", err)
			return
		}
		w.onDeadLettered(job.Type)
		return
	}

	if err := handler.Handle(ctx, job); err != nil {
		log.Warn("handler failed", zap.Error(err))
		if ferr := w.q.Fail(ctx, job.ID, err); ferr != nil {
			w.logSettleError(log, "fail", ferr)
			return
		}
		// The queue decided retry vs dead-letter from the attempt count;
		// attempts+1 hitting the budget means this was the last try.
		if job.Attempts+1 >= job.MaxAttempts {
			log.Error("retries exhausted, job dead-lettered", zap.Error(err))
			w.onDeadLettered(job.Type)
		} else {
			w.onFailed(job.Type)
		}
		return
	}

	if err := w.q.Ack(ctx, job.ID); err != nil {
		w.logSettleError(log, "ack", err)
		return
	}

	elapsed := time.Since(start)
	w.onCompleted(job.Type, elapsed)
	log.Info("job completed", zap.Duration("latency", elapsed))
}

// logSettleError reports a failure to settle an outcome with the queue.
// A lost claim (visibility timeout lapsed mid-processing) is expected under
// at-least-once delivery and logged at warn; store errors are real problems.
func (w *Worker) logSettleError(log *zap.Logger, op string, err error) {
	if errors.Is(err, queue.ErrJobNotActive) {
		log.Warn("claim lost before "+op+", job will be redelivered", zap.Error(err))
		return
	}
	log.Error("failed to "+op+" job", zap.Error(err))
}
