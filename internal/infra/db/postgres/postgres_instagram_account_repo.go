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

var _ repository.InstagramAccountRepository = (*instagramAccountRepo)(nil)

type instagramAccountRepo struct {
	pool *pgxpool.Pool
}

func NewInstagramAccountRepo(pool *pgxpool.Pool) *instagramAccountRepo {
	return &instagramAccountRepo{pool: pool}
}

const accountColumns = `
id, user_id, ig_user_id, username, access_token, token_expires_at, created_at, updated_at`

func (r *instagramAccountRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.InstagramAccount, error) {
	const q = `SELECT ` + accountColumns + ` FROM instagram_accounts WHERE user_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanAccount(row)
}

func (r *instagramAccountRepo) FindExpiringBefore(ctx context.Context, tx repository.Tx, deadline time.Time) ([]*model.InstagramAccount, error) {
	const q = `SELECT ` + accountColumns + ` FROM instagram_accounts WHERE token_expires_at <= $1 ORDER BY token_expires_at;`
	rows, err := pickRows(ctx, r.pool, tx, q, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.InstagramAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *instagramAccountRepo) UpdateToken(ctx context.Context, tx repository.Tx, id, accessToken string, expiresAt time.Time) error {
	const q = `
UPDATE instagram_accounts SET access_token = $2, token_expires_at = $3, updated_at = now()
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, accessToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*model.InstagramAccount, error) {
	var a model.InstagramAccount
	err := row.Scan(&a.ID, &a.UserID, &a.IGUserID, &a.Username, &a.AccessToken,
		&a.TokenExpiresAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &a, nil
}
