package repository

import (
	"context"
	"time"

	"story-scheduler/internal/domain/model"
)

type InstagramAccountRepository interface {
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.InstagramAccount, error)

	// FindExpiringBefore returns accounts whose token expires at or before the
	// given instant. Used by the refresh sweep.
	FindExpiringBefore(ctx context.Context, tx Tx, deadline time.Time) ([]*model.InstagramAccount, error)

	// UpdateToken stores a freshly refreshed token and its new expiry.
	UpdateToken(ctx context.Context, tx Tx, id, accessToken string, expiresAt time.Time) error
}
