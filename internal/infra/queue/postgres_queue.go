package queue

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"story-scheduler/internal/domain"
)

// PostgresQueue stores entries in the queue_entries table. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never lease the same id.
type PostgresQueue struct {
	pool        *pgxpool.Pool
	maxAttempts int
	backoffBase time.Duration
}

var _ Queue = (*PostgresQueue)(nil)

func NewPostgresQueue(pool *pgxpool.Pool, maxAttempts int, backoffBase time.Duration) *PostgresQueue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &PostgresQueue{pool: pool, maxAttempts: maxAttempts, backoffBase: backoffBase}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, id string, fireAt time.Time) error {
	const sql = `
INSERT INTO queue_entries (id, fire_at, status, attempts, max_attempts, created_at, updated_at)
VALUES ($1, $2, 'queued', 0, $3, now(), now())
ON CONFLICT (id) DO UPDATE SET
  fire_at      = EXCLUDED.fire_at,
  status       = 'queued',
  attempts     = 0,
  last_error   = '',
  leased_until = NULL,
  finished_at  = NULL,
  updated_at   = now()
WHERE queue_entries.status <> 'leased';`
	tag, err := q.pool.Exec(ctx, sql, id, fireAt, q.maxAttempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// currently leased by a worker; replacing mid-flight would break the
		// single-holder guarantee
		return domain.ErrConflict
	}
	return nil
}

func (q *PostgresQueue) Cancel(ctx context.Context, id string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM queue_entries WHERE id = $1 AND status = 'queued';`, id)
	return err
}

func (q *PostgresQueue) Lease(ctx context.Context, now time.Time, leaseFor time.Duration) (*Entry, error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const pick = `
SELECT id, fire_at, attempts, max_attempts, last_error
FROM queue_entries
WHERE status = 'queued' AND fire_at <= $1
ORDER BY fire_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

	var e Entry
	err = tx.QueryRow(ctx, pick, now).Scan(&e.ID, &e.FireAt, &e.Attempts, &e.MaxAttempts, &e.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	until := now.Add(leaseFor)
	const claim = `
UPDATE queue_entries SET status = 'leased', leased_until = $2, updated_at = now()
WHERE id = $1;`
	if _, err := tx.Exec(ctx, claim, e.ID, until); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	e.Status = StatusLeased
	e.LeasedUntil = &until
	return &e, nil
}

func (q *PostgresQueue) Ack(ctx context.Context, id string) error {
	const sql = `
UPDATE queue_entries SET status = 'done', finished_at = now(), leased_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'leased';`
	tag, err := q.pool.Exec(ctx, sql, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (q *PostgresQueue) Nack(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	// Row lock plus the status guard keep two racing nacks from both
	// consuming an attempt: the loser sees the row already re-queued.
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var attempts, maxAttempts int
	err = tx.QueryRow(ctx,
		`SELECT attempts, max_attempts FROM queue_entries WHERE id = $1 AND status = 'leased' FOR UPDATE;`,
		id).Scan(&attempts, &maxAttempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrConflict
		}
		return err
	}

	attempts++
	if attempts >= maxAttempts {
		const dead = `
UPDATE queue_entries SET status = 'dead', attempts = $2, last_error = $3,
  finished_at = now(), leased_until = NULL, updated_at = now()
WHERE id = $1;`
		if _, err := tx.Exec(ctx, dead, id, attempts, msg); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	fireAt := time.Now().Add(Backoff(q.backoffBase, attempts))
	const requeue = `
UPDATE queue_entries SET status = 'queued', attempts = $2, last_error = $3,
  fire_at = $4, finished_at = NULL, leased_until = NULL, updated_at = now()
WHERE id = $1;`
	if _, err := tx.Exec(ctx, requeue, id, attempts, msg, fireAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (q *PostgresQueue) Release(ctx context.Context, id string) error {
	const sql = `
UPDATE queue_entries SET status = 'queued', leased_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'leased';`
	_, err := q.pool.Exec(ctx, sql, id)
	return err
}

func (q *PostgresQueue) RequeueStale(ctx context.Context, now time.Time) (int64, error) {
	const sql = `
UPDATE queue_entries SET status = 'queued', leased_until = NULL, updated_at = now()
WHERE status = 'leased' AND leased_until < $1;`
	tag, err := q.pool.Exec(ctx, sql, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *PostgresQueue) Prune(ctx context.Context, doneBefore, deadBefore time.Time) (int64, error) {
	const sql = `
DELETE FROM queue_entries
WHERE (status = 'done' AND finished_at < $1)
   OR (status = 'dead' AND finished_at < $2);`
	tag, err := q.pool.Exec(ctx, sql, doneBefore, deadBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *PostgresQueue) Stats(ctx context.Context) (Stats, error) {
	const sql = `SELECT status, COUNT(*) FROM queue_entries GROUP BY status;`
	rows, err := q.pool.Query(ctx, sql)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		switch EntryStatus(status) {
		case StatusQueued:
			s.Queued = n
		case StatusLeased:
			s.Leased = n
		case StatusDone:
			s.Done = n
		case StatusDead:
			s.Dead = n
		}
	}
	return s, rows.Err()
}
