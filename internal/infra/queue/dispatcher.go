package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"story-scheduler/internal/domain"
	"story-scheduler/internal/infra/metrics"
	"story-scheduler/internal/infra/worker"
)

// RateLimiter is the shared throughput cap across all workers. Implemented by
// the Redis sliding-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Handler executes one fired job. A nil return acks the entry; an error nacks
// it into the retry/backoff path.
type Handler func(ctx context.Context, jobID string) error

type DispatcherConfig struct {
	PollInterval  time.Duration
	LeaseDuration time.Duration
	RateLimit     int
	RateWindow    time.Duration
	RateKey       string
	StaleInterval time.Duration
}

// Dispatcher pulls due entries from the queue and hands each to the worker
// pool, holding job starts under the global rate limit. Blocking work happens
// inside the pool; the dispatch loop itself never blocks on a job.
type Dispatcher struct {
	queue   Queue
	pool    *worker.Pool
	limiter RateLimiter
	handler Handler
	cfg     DispatcherConfig
	log     *zerolog.Logger
}

func NewDispatcher(q Queue, pool *worker.Pool, limiter RateLimiter, handler Handler, cfg DispatcherConfig, logger *zerolog.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	if cfg.StaleInterval <= 0 {
		cfg.StaleInterval = 30 * time.Second
	}
	if cfg.RateKey == "" {
		cfg.RateKey = "rate_limit:jobs:starts"
	}
	dlog := logger.With().Str("component", "Dispatcher").Logger()
	return &Dispatcher{queue: q, pool: pool, limiter: limiter, handler: handler, cfg: cfg, log: &dlog}
}

// Run drives the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().
		Int("rate_limit", d.cfg.RateLimit).
		Dur("rate_window", d.cfg.RateWindow).
		Msg("dispatcher started")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	stale := time.NewTicker(d.cfg.StaleInterval)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopping")
			return ctx.Err()
		case <-stale.C:
			if n, err := d.queue.RequeueStale(ctx, time.Now()); err != nil {
				d.log.Error().Err(err).Msg("requeue stale leases")
			} else if n > 0 {
				d.log.Warn().Int64("count", n).Msg("requeued stale leases")
			}
		case <-ticker.C:
			d.dispatchDue(ctx)
		}
	}
}

// dispatchDue drains due entries until the pool is full, the limiter says
// stop, or nothing is due.
func (d *Dispatcher) dispatchDue(ctx context.Context) {
	for d.pool.Capacity() > 0 {
		entry, err := d.queue.Lease(ctx, time.Now(), d.cfg.LeaseDuration)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				d.log.Error().Err(err).Msg("lease failed")
			}
			return
		}
		id := entry.ID

		// The limiter caps job starts, so it is consulted only once a job is
		// in hand; polling an empty queue must not consume window slots.
		ok, err := d.limiter.Allow(ctx, d.cfg.RateKey, d.cfg.RateLimit, d.cfg.RateWindow)
		if err != nil {
			d.log.Error().Err(err).Msg("rate limiter unavailable")
			d.release(ctx, id)
			return
		}
		if !ok {
			metrics.IncJobThrottled()
			d.release(ctx, id)
			return
		}

		metrics.IncJobStart()
		attempt := entry.Attempts + 1
		if err := d.pool.Submit(d.executionTask(id, attempt)); err != nil {
			d.release(ctx, id)
			return
		}
	}
}

// release hands a lease back without burning an attempt, for jobs that never
// started (throttled, limiter outage, full pool).
func (d *Dispatcher) release(ctx context.Context, id string) {
	if err := d.queue.Release(ctx, id); err != nil {
		d.log.Error().Err(err).Str("job_id", id).Msg("release lease")
	}
}

func (d *Dispatcher) executionTask(id string, attempt int) worker.Task {
	return func(ctx context.Context) error {
		start := time.Now()
		err := d.runHandler(ctx, id)
		elapsed := time.Since(start)

		if err != nil {
			metrics.IncJobResult("failed")
			d.log.Error().Err(err).Str("job_id", id).Int("attempt", attempt).
				Dur("duration", elapsed).Msg("job failed")
			if nerr := d.queue.Nack(context.Background(), id, err); nerr != nil && !errors.Is(nerr, domain.ErrConflict) {
				d.log.Error().Err(nerr).Str("job_id", id).Msg("nack failed")
			}
			return nil // already accounted; don't double-log through the pool
		}

		metrics.IncJobResult("completed")
		d.log.Info().Str("job_id", id).Int("attempt", attempt).
			Dur("duration", elapsed).Msg("job finished")
		if aerr := d.queue.Ack(context.Background(), id); aerr != nil && !errors.Is(aerr, domain.ErrConflict) {
			d.log.Error().Err(aerr).Str("job_id", id).Msg("ack failed")
		}
		return nil
	}
}

// runHandler isolates handler panics so one job cannot take down its worker
// or skip retry accounting.
func (d *Dispatcher) runHandler(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return d.handler(ctx, id)
}
