package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"story-scheduler/internal/domain"
	"story-scheduler/internal/domain/model"
	"story-scheduler/internal/domain/ports/repository"
)

var _ repository.ScheduledPostRepository = (*scheduledPostRepo)(nil)

type scheduledPostRepo struct {
	pool *pgxpool.Pool
}

func NewScheduledPostRepo(pool *pgxpool.Pool) *scheduledPostRepo {
	return &scheduledPostRepo{pool: pool}
}

const scheduledPostColumns = `
id, user_id, post_id, content_text, author_name, author_username, author_image_url,
content_posted_at, theme, post_type, scheduled_for, status, image_url,
instagram_media_id, published_at, posted_at, notified_at, error_message,
created_at, updated_at`

func (r *scheduledPostRepo) Create(ctx context.Context, tx repository.Tx, post *model.ScheduledPost) error {
	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	// Friendly pre-check; the partial unique index is the real guard.
	const dupe = `
SELECT COUNT(*) FROM scheduled_posts
WHERE user_id = $1 AND post_id = $2 AND status IN ('PENDING', 'PROCESSING');`
	row, err := pickRow(ctx, r.pool, tx, dupe, post.UserID, post.PostID)
	if err != nil {
		return err
	}
	var active int
	if err := row.Scan(&active); err != nil {
		return domain.ErrReadDatabaseRow
	}
	if active > 0 {
		return domain.ErrActiveJobExists
	}

	const q = `
INSERT INTO scheduled_posts (` + scheduledPostColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20);`
	_, err = execSQL(ctx, r.pool, tx, q,
		post.ID, post.UserID, post.PostID,
		post.Content.Text, post.Content.AuthorName, post.Content.AuthorUsername, post.Content.AuthorImageURL,
		post.Content.PostedAt, post.Theme, post.PostType, post.ScheduledFor, post.Status,
		post.ImageURL, post.InstagramMediaID, post.PublishedAt, post.PostedAt, post.NotifiedAt,
		post.ErrorMessage, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// lost the check-then-insert race to a concurrent schedule call
			return domain.ErrActiveJobExists
		}
		return err
	}
	return nil
}

func (r *scheduledPostRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ScheduledPost, error) {
	const q = `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanScheduledPost(row)
}

func (r *scheduledPostRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string, status model.PostStatus) ([]*model.ScheduledPost, error) {
	q := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY scheduled_for ASC;`

	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ScheduledPost
	for rows.Next() {
		p, err := scanScheduledPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *scheduledPostRepo) Transition(ctx context.Context, tx repository.Tx, id string, from []model.PostStatus, to model.PostStatus, patch repository.TransitionPatch) error {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	// Nil patch fields leave the column as-is; clearing text columns is done
	// by passing a pointer to the empty string.
	const q = `
UPDATE scheduled_posts SET
  status             = $3,
  image_url          = COALESCE($4, image_url),
  instagram_media_id = COALESCE($5, instagram_media_id),
  published_at       = COALESCE($6, published_at),
  posted_at          = COALESCE($7, posted_at),
  notified_at        = COALESCE($8, notified_at),
  error_message      = COALESCE($9, error_message),
  scheduled_for      = COALESCE($10, scheduled_for),
  updated_at         = now()
WHERE id = $1 AND status = ANY($2);`

	tag, err := execSQL(ctx, r.pool, tx, q,
		id, fromStrs, to,
		patch.ImageURL, patch.InstagramMediaID, patch.PublishedAt, patch.PostedAt,
		patch.NotifiedAt, patch.ErrorMessage, patch.ScheduledFor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *scheduledPostRepo) Reclaim(ctx context.Context, tx repository.Tx, id string, staleBefore time.Time) error {
	// The staleness condition is the guard: a live worker keeps updated_at
	// fresh through its own transitions, so only an abandoned run matches.
	const q = `
UPDATE scheduled_posts SET updated_at = now()
WHERE id = $1 AND status = 'PROCESSING' AND updated_at <= $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, staleBefore)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *scheduledPostRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `DELETE FROM scheduled_posts WHERE id = $1 AND status <> 'PROCESSING';`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish "mid-flight" from "gone".
	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM scheduled_posts WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return domain.ErrInvalidState
}

func (r *scheduledPostRepo) SetPostedAt(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE scheduled_posts SET posted_at = $2, updated_at = now() WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanScheduledPost(row pgx.Row) (*model.ScheduledPost, error) {
	var p model.ScheduledPost
	var statusStr, typeStr string
	err := row.Scan(
		&p.ID, &p.UserID, &p.PostID,
		&p.Content.Text, &p.Content.AuthorName, &p.Content.AuthorUsername, &p.Content.AuthorImageURL,
		&p.Content.PostedAt, &p.Theme, &typeStr, &p.ScheduledFor, &statusStr,
		&p.ImageURL, &p.InstagramMediaID, &p.PublishedAt, &p.PostedAt, &p.NotifiedAt,
		&p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Status = model.PostStatus(statusStr)
	p.PostType = model.PostType(typeStr)
	return &p, nil
}
