package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"story-scheduler/internal/infra/metrics"
	"story-scheduler/internal/infra/queue"
)

// QueueMaintenanceWorker prunes finished queue entries past their retention
// windows and exports queue depth gauges.
type QueueMaintenanceWorker struct {
	queue         queue.Queue
	interval      time.Duration
	doneRetention time.Duration
	deadRetention time.Duration
	log           *zerolog.Logger
	now           func() time.Time
}

func NewQueueMaintenanceWorker(q queue.Queue, interval, doneRetention, deadRetention time.Duration, logger *zerolog.Logger) *QueueMaintenanceWorker {
	l := logger.With().Str("component", "QueueMaintenanceWorker").Logger()
	return &QueueMaintenanceWorker{
		queue:         q,
		interval:      interval,
		doneRetention: doneRetention,
		deadRetention: deadRetention,
		log:           &l,
		now:           time.Now,
	}
}

func (w *QueueMaintenanceWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("queue maintenance worker started")

	w.tick(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("queue maintenance worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *QueueMaintenanceWorker) tick(ctx context.Context) {
	now := w.now()
	pruned, err := w.queue.Prune(ctx, now.Add(-w.doneRetention), now.Add(-w.deadRetention))
	if err != nil {
		w.log.Error().Err(err).Msg("queue prune failed")
	} else if pruned > 0 {
		w.log.Info().Int64("count", pruned).Msg("pruned finished queue entries")
	}

	stats, err := w.queue.Stats(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("queue stats failed")
		return
	}
	metrics.SetQueueDepth(string(queue.StatusQueued), float64(stats.Queued))
	metrics.SetQueueDepth(string(queue.StatusLeased), float64(stats.Leased))
	metrics.SetQueueDepth(string(queue.StatusDone), float64(stats.Done))
	metrics.SetQueueDepth(string(queue.StatusDead), float64(stats.Dead))
}
