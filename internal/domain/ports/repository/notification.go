package repository

import (
	"context"

	"story-scheduler/internal/domain/model"
)

type NotificationRepository interface {
	Save(ctx context.Context, tx Tx, n *model.Notification) error
	FindByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Notification, error)
}

type DeviceTokenRepository interface {
	FindByUser(ctx context.Context, tx Tx, userID string) ([]*model.DeviceToken, error)
}

// UserContactRepository resolves the email address used for the email channel.
// An empty address with a nil error means the user has no email on file.
type UserContactRepository interface {
	EmailByUser(ctx context.Context, tx Tx, userID string) (string, error)
}
