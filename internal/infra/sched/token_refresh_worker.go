// Package sched holds the periodic background workers: the token refresh
// sweep and the queue maintenance loop.
package sched

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"story-scheduler/internal/domain"
	"story-scheduler/internal/domain/model"
	"story-scheduler/internal/domain/ports/adapter"
	"story-scheduler/internal/domain/ports/repository"
	"story-scheduler/internal/infra/metrics"
	"story-scheduler/internal/infra/redis"
)

const tokenRefreshLockKey = "lock:token_refresh_sweep"

// TokenRefreshWorker periodically refreshes Instagram long-lived tokens that
// are about to expire. A Redis lock keeps the sweep single-flight across
// instances.
type TokenRefreshWorker struct {
	accounts  repository.InstagramAccountRepository
	notifs    repository.NotificationRepository
	devices   repository.DeviceTokenRepository
	publisher adapter.InstagramPublisher
	push      adapter.PushSender
	locker    redis.Locker

	interval  time.Duration
	threshold time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func NewTokenRefreshWorker(
	accounts repository.InstagramAccountRepository,
	notifs repository.NotificationRepository,
	devices repository.DeviceTokenRepository,
	publisher adapter.InstagramPublisher,
	push adapter.PushSender,
	locker redis.Locker,
	interval, threshold time.Duration,
	logger *zerolog.Logger,
) *TokenRefreshWorker {
	l := logger.With().Str("component", "TokenRefreshWorker").Logger()
	return &TokenRefreshWorker{
		accounts:  accounts,
		notifs:    notifs,
		devices:   devices,
		publisher: publisher,
		push:      push,
		locker:    locker,
		interval:  interval,
		threshold: threshold,
		log:       &l,
		now:       time.Now,
	}
}

// Run sweeps once at startup and then on every tick until ctx is cancelled.
func (w *TokenRefreshWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("threshold", w.threshold).Msg("token refresh worker started")

	w.sweep(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("token refresh worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *TokenRefreshWorker) sweep(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, tokenRefreshLockKey, w.interval/2)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Debug().Msg("another instance holds the sweep lock")
		} else {
			w.log.Error().Err(err).Msg("sweep lock unavailable")
		}
		return
	}
	defer func() {
		if err := w.locker.Unlock(ctx, tokenRefreshLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("sweep unlock failed")
		}
	}()

	now := w.now()
	accounts, err := w.accounts.FindExpiringBefore(ctx, repository.NoTX, now.Add(w.threshold))
	if err != nil {
		w.log.Error().Err(err).Msg("load expiring accounts failed")
		return
	}
	if len(accounts) == 0 {
		return
	}
	w.log.Info().Int("count", len(accounts)).Msg("refreshing expiring tokens")

	for _, account := range accounts {
		w.refresh(ctx, account, now)
	}
}

// refresh handles one account. Already-expired tokens cannot be refreshed by
// the API; the user is asked to reconnect instead.
func (w *TokenRefreshWorker) refresh(ctx context.Context, account *model.InstagramAccount, now time.Time) {
	log := w.log.With().Str("account_id", account.ID).Str("user_id", account.UserID).Logger()

	if account.Expired(now) {
		metrics.IncTokenRefresh("skipped_expired")
		log.Warn().Time("expired_at", account.TokenExpiresAt).Msg("token already expired, asking user to reconnect")
		w.remind(ctx, account.UserID, "Instagram connection expired",
			"Your Instagram connection expired. Reconnect to keep scheduled posts publishing.")
		return
	}

	newToken, expiresIn, err := w.publisher.RefreshToken(ctx, account.AccessToken)
	if err != nil {
		metrics.IncTokenRefresh("failed")
		log.Error().Err(err).Msg("token refresh failed")
		w.remind(ctx, account.UserID, "Instagram connection needs attention",
			"We couldn't renew your Instagram connection. Reconnect before it expires.")
		return
	}

	expiresAt := now.Add(time.Duration(expiresIn) * time.Second)
	if err := w.accounts.UpdateToken(ctx, repository.NoTX, account.ID, newToken, expiresAt); err != nil {
		metrics.IncTokenRefresh("failed")
		log.Error().Err(err).Msg("store refreshed token failed")
		return
	}
	metrics.IncTokenRefresh("refreshed")
	log.Info().Time("expires_at", expiresAt).Msg("token refreshed")
}

// remind persists a REMINDER notification and pushes it to the user's devices.
func (w *TokenRefreshWorker) remind(ctx context.Context, userID, title, body string) {
	n := &model.Notification{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Kind:      model.NotificationReminder,
		Title:     title,
		Body:      body,
		CreatedAt: w.now(),
	}
	if err := w.notifs.Save(ctx, repository.NoTX, n); err != nil {
		w.log.Error().Err(err).Str("user_id", userID).Msg("persist reminder failed")
	}

	tokens, err := w.devices.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		w.log.Error().Err(err).Str("user_id", userID).Msg("load device tokens failed")
		return
	}
	for _, t := range tokens {
		_, err := w.push.SendPush(ctx, adapter.PushMessage{
			Token: t.Token,
			Title: title,
			Body:  body,
			Data:  map[string]string{"kind": string(model.NotificationReminder)},
		})
		metrics.IncNotify("push", err == nil)
		if err != nil {
			w.log.Warn().Err(err).Str("device_id", t.ID).Msg("reminder push failed")
		}
	}
}
