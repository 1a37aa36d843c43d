package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donorhub/notify-pipeline/internal/domain"
)

type pgQueue struct {
	pool *pgxpool.Pool
	opts Options
}

// NewPgQueue returns a Queue backed by PostgreSQL.
//
// Claims use FOR UPDATE SKIP LOCKED so concurrent workers never block each
// other and never observe the same job Active. The visibility timeout is
// stored on the row (locked_until); an expired Active row is claimable
// again, which is what makes delivery at-least-once across worker crashes.
func NewPgQueue(pool *pgxpool.Pool, opts Options) Queue {
	return &pgQueue{pool: pool, opts: opts.withDefaults()}
}

func (q *pgQueue) Enqueue(ctx context.Context, jobType string, payload map[string]any) (string, error) {
	id := uuid.New().String()
	if payload == nil {
		payload = map[string]any{}
	}

	_, err := q.pool.Exec(ctx, `
		INSERT INTO jobs (id, type, payload, state, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'waiting', 0, $4, NOW(), NOW(), NOW())`,
		id, jobType, payload, q.opts.MaxAttempts,
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert job: %v", domain.ErrQueueUnavailable, err)
	}
	return id, nil
}

func (q *pgQueue) Dequeue(ctx context.Context) (*domain.Job, error) {
	for {
		job, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.opts.PollInterval):
		}
	}
}

// claim atomically picks one eligible row and marks it Active.
// Eligible: waiting or failed with run_at due, or an Active row whose
// visibility window lapsed (abandoned by a crashed or stalled worker).
func (q *pgQueue) claim(ctx context.Context) (*domain.Job, error) {
	row := q.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM jobs
			WHERE (state IN ('waiting', 'failed') AND run_at <= NOW())
			   OR (state = 'active' AND locked_until <= NOW())
			ORDER BY run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs
		SET state = 'active',
		    locked_until = NOW() + $1,
		    updated_at = NOW()
		FROM next
		WHERE jobs.id = next.id
		RETURNING jobs.id, jobs.type, jobs.payload, jobs.state, jobs.attempts,
		          jobs.max_attempts, jobs.run_at, jobs.last_error,
		          jobs.created_at, jobs.updated_at`,
		q.opts.VisibilityTimeout,
	)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: claim job: %v", domain.ErrQueueUnavailable, err)
	}
	return job, nil
}

func (q *pgQueue) Ack(ctx context.Context, id string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'completed', locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND state = 'active'`, id)
	if err != nil {
		return fmt.Errorf("%w: ack job: %v", domain.ErrQueueUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotActive
	}
	return nil
}

func (q *pgQueue) Fail(ctx context.Context, id string, cause error) error {
	// Single round trip: the CASE decides retry vs dead-letter from the
	// post-increment attempt count, and run_at gets the clamped exponential
	// backoff. The backoff value for dead-lettered rows is irrelevant.
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET attempts     = attempts + 1,
		    last_error   = $2,
		    locked_until = NULL,
		    updated_at   = NOW(),
		    state        = CASE WHEN attempts + 1 >= max_attempts
		                        THEN 'dead_lettered' ELSE 'failed' END,
		    run_at       = NOW() + make_interval(secs =>
		                       LEAST($3::float8 * power(2, attempts), $4::float8))
		WHERE id = $1 AND state = 'active'`,
		id, cause.Error(), q.opts.BackoffBase.Seconds(), q.opts.BackoffMax.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("%w: fail job: %v", domain.ErrQueueUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotActive
	}
	return nil
}

func (q *pgQueue) DeadLetter(ctx context.Context, id string, reason string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'dead_lettered',
		    attempts = attempts + 1,
		    last_error = $2,
		    locked_until = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND state = 'active'`, id, reason)
	if err != nil {
		return fmt.Errorf("%w: dead-letter job: %v", domain.ErrQueueUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotActive
	}
	return nil
}

func (q *pgQueue) ListDeadLettered(ctx context.Context, limit int) ([]*domain.Job, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, type, payload, state, attempts, max_attempts, run_at,
		       last_error, created_at, updated_at
		FROM jobs
		WHERE state = 'dead_lettered'
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list dead-lettered: %v", domain.ErrQueueUnavailable, err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (q *pgQueue) Stats(ctx context.Context) (Stats, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: queue stats: %v", domain.ErrQueueUnavailable, err)
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, err
		}
		switch domain.JobState(state) {
		case domain.JobStateWaiting:
			s.Waiting = count
		case domain.JobStateActive:
			s.Active = count
		case domain.JobStateFailed:
			s.Failed = count
		case domain.JobStateCompleted:
			s.Completed = count
		case domain.JobStateDeadLettered:
			s.DeadLettered = count
		}
	}
	return s, rows.Err()
}

// scanJob reads a single job row from any pgx row type.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &j.State, &j.Attempts,
		&j.MaxAttempts, &j.RunAt, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
