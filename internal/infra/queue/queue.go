// Package queue provides the durable delayed job queue behind the delivery
// pipeline: enqueue at a future fire time with id-based dedup, leased delivery
// to exactly one worker at a time, bounded retries with exponential backoff,
// and pruning of finished entries.
package queue

import (
	"context"
	"time"
)

type EntryStatus string

const (
	StatusQueued EntryStatus = "queued"
	StatusLeased EntryStatus = "leased"
	StatusDone   EntryStatus = "done"
	StatusDead   EntryStatus = "dead"
)

// Entry is one scheduled execution. The id doubles as the dedup key: it is
// derived from the job, so enqueueing the same job twice replaces the pending
// execution instead of duplicating it.
type Entry struct {
	ID          string
	FireAt      time.Time
	Status      EntryStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	LeasedUntil *time.Time
	FinishedAt  *time.Time
}

// Stats is a point-in-time count of entries by status, exported as gauges.
type Stats struct {
	Queued int64
	Leased int64
	Done   int64
	Dead   int64
}

// Queue is the durable delayed queue. Delivery is at-least-once: a leased
// entry whose worker crashes before Ack/Nack is returned to queued by
// RequeueStale and redelivered.
type Queue interface {
	// Enqueue schedules exactly one future execution of id at fireAt. An
	// already-queued id has its fire time replaced; a leased/done/dead id is
	// reset for a fresh run.
	Enqueue(ctx context.Context, id string, fireAt time.Time) error

	// Cancel removes a not-yet-fired execution. No-op when the entry is
	// absent or already leased.
	Cancel(ctx context.Context, id string) error

	// Lease atomically claims the next due queued entry for leaseFor.
	// Returns domain.ErrNotFound when nothing is due.
	Lease(ctx context.Context, now time.Time, leaseFor time.Duration) (*Entry, error)

	// Ack marks a leased entry done. The row is retained for inspection until
	// pruned.
	Ack(ctx context.Context, id string) error

	// Nack records a failed attempt: the entry is re-queued with exponential
	// backoff, or marked dead once attempts reach MaxAttempts.
	Nack(ctx context.Context, id string, cause error) error

	// Release returns a leased entry to queued without consuming an attempt
	// (used when the worker never started the job).
	Release(ctx context.Context, id string) error

	// RequeueStale returns leased entries whose lease expired before now.
	RequeueStale(ctx context.Context, now time.Time) (int64, error)

	// Prune deletes done entries finished before doneBefore and dead entries
	// finished before deadBefore.
	Prune(ctx context.Context, doneBefore, deadBefore time.Time) (int64, error)

	Stats(ctx context.Context) (Stats, error)
}

// Backoff returns the re-queue delay after n failed attempts:
// base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
