package repository

import (
	"context"
	"time"

	"story-scheduler/internal/domain/model"
)

// TransitionPatch carries the fields a status transition may set alongside the
// status change itself. Nil pointers leave the column untouched.
type TransitionPatch struct {
	ImageURL         *string
	InstagramMediaID *string
	PublishedAt      *time.Time
	PostedAt         *time.Time
	NotifiedAt       *time.Time
	ErrorMessage     *string
	ScheduledFor     *time.Time
}

type ScheduledPostRepository interface {
	// Create inserts a new PENDING job. Returns domain.ErrActiveJobExists when
	// a PENDING or PROCESSING job already exists for the same (user, post).
	Create(ctx context.Context, tx Tx, post *model.ScheduledPost) error

	FindByID(ctx context.Context, tx Tx, id string) (*model.ScheduledPost, error)
	FindByUser(ctx context.Context, tx Tx, userID string, status model.PostStatus) ([]*model.ScheduledPost, error)

	// Transition conditionally moves the job from one of `from` to `to`,
	// applying patch in the same statement. Returns domain.ErrConflict when the
	// current status is not in `from` (the optimistic guard against
	// double-processing).
	Transition(ctx context.Context, tx Tx, id string, from []model.PostStatus, to model.PostStatus, patch TransitionPatch) error

	// Reclaim re-takes a PROCESSING job whose last update is at or before
	// staleBefore, so a redelivered entry can recover a run that died after
	// claiming. Returns domain.ErrConflict when the job is not PROCESSING or
	// was touched more recently.
	Reclaim(ctx context.Context, tx Tx, id string, staleBefore time.Time) error

	// Delete removes the job. Returns domain.ErrInvalidState for PROCESSING
	// jobs, domain.ErrNotFound when absent.
	Delete(ctx context.Context, tx Tx, id string) error

	// SetPostedAt stamps the manual-post timestamp without a status change.
	SetPostedAt(ctx context.Context, tx Tx, id string, at time.Time) error
}
