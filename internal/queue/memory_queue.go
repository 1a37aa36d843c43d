package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/donorhub/notify-pipeline/internal/domain"
)

// MemoryQueue is an in-memory Queue with the same state machine and
// visibility semantics as the Postgres implementation. Used in unit tests
// and for local development without a database.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	opts Options
	now  func() time.Time
}

type memJob struct {
	job         domain.Job
	lockedUntil time.Time
}

func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		jobs: make(map[string]*memJob),
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// SetClock overrides the queue's time source. Test helper: lets visibility
// and backoff windows be crossed without sleeping.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobType string, payload map[string]any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if payload == nil {
		payload = map[string]any{}
	}
	now := q.now()
	id := uuid.New().String()
	q.jobs[id] = &memJob{job: domain.Job{
		ID:          id,
		Type:        jobType,
		Payload:     payload,
		State:       domain.JobStateWaiting,
		MaxAttempts: q.opts.MaxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
	return id, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*domain.Job, error) {
	for {
		if job := q.claim(); job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.opts.PollInterval):
		}
	}
}

func (q *MemoryQueue) claim() *domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var eligible []*memJob
	for _, mj := range q.jobs {
		switch mj.job.State {
		case domain.JobStateWaiting, domain.JobStateFailed:
			if !mj.job.RunAt.After(now) {
				eligible = append(eligible, mj)
			}
		case domain.JobStateActive:
			// Abandoned claim: visibility window lapsed.
			if !mj.lockedUntil.After(now) {
				eligible = append(eligible, mj)
			}
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	// Oldest run_at first, matching the Postgres ORDER BY.
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].job.RunAt.Before(eligible[j].job.RunAt)
	})

	mj := eligible[0]
	mj.job.State = domain.JobStateActive
	mj.job.UpdatedAt = now
	mj.lockedUntil = now.Add(q.opts.VisibilityTimeout)

	clone := mj.job
	clone.Payload = clonePayload(mj.job.Payload)
	return &clone
}

func (q *MemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mj, ok := q.jobs[id]
	if !ok || mj.job.State != domain.JobStateActive {
		return ErrJobNotActive
	}
	mj.job.State = domain.JobStateCompleted
	mj.job.UpdatedAt = q.now()
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mj, ok := q.jobs[id]
	if !ok || mj.job.State != domain.JobStateActive {
		return ErrJobNotActive
	}

	now := q.now()
	msg := cause.Error()
	mj.job.Attempts++
	mj.job.LastError = &msg
	mj.job.UpdatedAt = now

	if mj.job.Attempts >= mj.job.MaxAttempts {
		mj.job.State = domain.JobStateDeadLettered
		return nil
	}
	mj.job.State = domain.JobStateFailed
	mj.job.RunAt = now.Add(q.opts.backoff(mj.job.Attempts - 1))
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mj, ok := q.jobs[id]
	if !ok || mj.job.State != domain.JobStateActive {
		return ErrJobNotActive
	}
	mj.job.Attempts++
	mj.job.LastError = &reason
	mj.job.State = domain.JobStateDeadLettered
	mj.job.UpdatedAt = q.now()
	return nil
}

func (q *MemoryQueue) ListDeadLettered(_ context.Context, limit int) ([]*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var jobs []*domain.Job
	for _, mj := range q.jobs {
		if mj.job.State == domain.JobStateDeadLettered {
			clone := mj.job
			clone.Payload = clonePayload(mj.job.Payload)
			jobs = append(jobs, &clone)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (q *MemoryQueue) Stats(_ context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, mj := range q.jobs {
		switch mj.job.State {
		case domain.JobStateWaiting:
			s.Waiting++
		case domain.JobStateActive:
			s.Active++
		case domain.JobStateFailed:
			s.Failed++
		case domain.JobStateCompleted:
			s.Completed++
		case domain.JobStateDeadLettered:
			s.DeadLettered++
		}
	}
	return s, nil
}

// Snapshot returns a copy of the stored job, for test assertions.
func (q *MemoryQueue) Snapshot(id string) (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mj, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	clone := mj.job
	clone.Payload = clonePayload(mj.job.Payload)
	return &clone, true
}

func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

var _ Queue = (*MemoryQueue)(nil)
