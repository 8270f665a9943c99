package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"story-scheduler/internal/domain"
	"story-scheduler/internal/domain/model"
	"story-scheduler/internal/domain/ports/repository"
)

var (
	_ repository.NotificationRepository = (*notificationRepo)(nil)
	_ repository.DeviceTokenRepository  = (*deviceTokenRepo)(nil)
	_ repository.UserContactRepository  = (*userContactRepo)(nil)
)

type notificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *notificationRepo {
	return &notificationRepo{pool: pool}
}

func (r *notificationRepo) Save(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO notifications (id, user_id, kind, title, body, image_url, post_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	_, err := execSQL(ctx, r.pool, tx, q,
		n.ID, n.UserID, n.Kind, n.Title, n.Body, n.ImageURL, n.PostID, n.CreatedAt)
	return err
}

func (r *notificationRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, kind, title, body, image_url, post_id, created_at
FROM notifications WHERE user_id = $1 ORDER BY id DESC LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var n model.Notification
		var kind string
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &n.ImageURL, &n.PostID, &n.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		n.Kind = model.NotificationKind(kind)
		out = append(out, &n)
	}
	return out, rows.Err()
}

type deviceTokenRepo struct {
	pool *pgxpool.Pool
}

func NewDeviceTokenRepo(pool *pgxpool.Pool) *deviceTokenRepo {
	return &deviceTokenRepo{pool: pool}
}

func (r *deviceTokenRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.DeviceToken, error) {
	const q = `SELECT id, user_id, token, created_at FROM device_tokens WHERE user_id = $1;`
	rows, err := pickRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.DeviceToken
	for rows.Next() {
		var t model.DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

type userContactRepo struct {
	pool *pgxpool.Pool
}

func NewUserContactRepo(pool *pgxpool.Pool) *userContactRepo {
	return &userContactRepo{pool: pool}
}

// EmailByUser returns "" with a nil error when the user has no email on file.
func (r *userContactRepo) EmailByUser(ctx context.Context, tx repository.Tx, userID string) (string, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COALESCE(email, '') FROM users WHERE id = $1;`, userID)
	if err != nil {
		return "", err
	}
	var email string
	if err := row.Scan(&email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", domain.ErrReadDatabaseRow
	}
	return email, nil
}
