// File: internal/usecase/schedule_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"story-scheduler/internal/domain"
	"story-scheduler/internal/domain/model"
	"story-scheduler/internal/domain/ports/repository"
	"story-scheduler/internal/infra/logging"
	"story-scheduler/internal/infra/queue"
	"story-scheduler/internal/render"
)

// RetryDelay is how far in the future an explicit user retry is re-scheduled.
const RetryDelay = 60 * time.Second

// ScheduleInput is the request to put one source post on the delivery
// pipeline. Theme may be empty; a weekday default is picked at schedule time.
type ScheduleInput struct {
	PostID       string
	Content      model.PostContent
	Theme        string
	PostType     model.PostType
	ScheduledFor time.Time
}

// ScheduleUseCase owns the job lifecycle the API exposes: schedule, cancel,
// retry, mark-posted, list. The processor owns everything between fire and
// completion.
type ScheduleUseCase struct {
	txManager repository.TransactionManager
	posts     repository.ScheduledPostRepository
	notifs    repository.NotificationRepository
	queue     queue.Queue
	log       *zerolog.Logger
	now       func() time.Time
}

func NewScheduleUseCase(
	txManager repository.TransactionManager,
	posts repository.ScheduledPostRepository,
	notifs repository.NotificationRepository,
	q queue.Queue,
	logger *zerolog.Logger,
) *ScheduleUseCase {
	l := logger.With().Str("component", "ScheduleUseCase").Logger()
	return &ScheduleUseCase{
		txManager: txManager,
		posts:     posts,
		notifs:    notifs,
		queue:     q,
		log:       &l,
		now:       time.Now,
	}
}

// Schedule validates the request, persists the PENDING job and enqueues its
// execution. The job id is derived from the source post id, so re-scheduling
// the same post while a job is active is rejected rather than duplicated.
func (uc *ScheduleUseCase) Schedule(ctx context.Context, userID string, in ScheduleInput) (*model.ScheduledPost, error) {
	if err := uc.validate(&in); err != nil {
		return nil, err
	}
	ctx = logging.WithUserID(ctx, userID)

	now := uc.now()
	post := &model.ScheduledPost{
		ID:           model.JobID(in.PostID),
		UserID:       userID,
		PostID:       in.PostID,
		Content:      in.Content,
		Theme:        in.Theme,
		PostType:     in.PostType,
		ScheduledFor: in.ScheduledFor,
		Status:       model.PostStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := uc.txManager.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return uc.posts.Create(ctx, tx, post)
	})
	if err != nil {
		return nil, err
	}

	if err := uc.queue.Enqueue(ctx, post.ID, in.ScheduledFor); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// a leased entry means the previous run is mid-flight
			return nil, fmt.Errorf("job is currently executing: %w", domain.ErrActiveJobExists)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	uc.log.Info().Str("job_id", post.ID).Str("post_id", in.PostID).
		Time("fire_at", in.ScheduledFor).Str("post_type", string(in.PostType)).
		Msg("post scheduled")
	return post, nil
}

func (uc *ScheduleUseCase) validate(in *ScheduleInput) error {
	if strings.TrimSpace(in.PostID) == "" {
		return fmt.Errorf("%w: postId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Content.Text) == "" || strings.TrimSpace(in.Content.AuthorName) == "" {
		return fmt.Errorf("%w: post text and author name are required", domain.ErrValidation)
	}
	if !in.ScheduledFor.After(uc.now()) {
		return fmt.Errorf("%w: scheduledFor must be in the future", domain.ErrValidation)
	}
	switch in.PostType {
	case model.PostTypeStory, model.PostTypePost:
	case "":
		in.PostType = model.PostTypeStory
	default:
		return fmt.Errorf("%w: unknown post type %q", domain.ErrValidation, in.PostType)
	}
	if in.Theme == "" {
		in.Theme = render.DefaultTheme(in.ScheduledFor)
	} else if !render.KnownTheme(in.Theme) {
		return fmt.Errorf("%w: unknown theme %q", domain.ErrValidation, in.Theme)
	}
	return nil
}

// Cancel removes a job that has not started executing. PROCESSING jobs are
// refused with domain.ErrInvalidState.
func (uc *ScheduleUseCase) Cancel(ctx context.Context, userID, jobID string) error {
	post, err := uc.ownedPost(ctx, userID, jobID)
	if err != nil {
		return err
	}

	err = uc.txManager.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return uc.posts.Delete(ctx, tx, jobID)
	})
	if err != nil {
		return err
	}

	if err := uc.queue.Cancel(ctx, jobID); err != nil {
		uc.log.Error().Err(err).Str("job_id", jobID).Msg("queue cancel failed after delete")
	}
	uc.log.Info().Str("job_id", jobID).Str("post_id", post.PostID).Msg("job cancelled")
	return nil
}

// Retry re-schedules a FAILED job one minute out and clears its error.
func (uc *ScheduleUseCase) Retry(ctx context.Context, userID, jobID string) (*model.ScheduledPost, error) {
	if _, err := uc.ownedPost(ctx, userID, jobID); err != nil {
		return nil, err
	}

	fireAt := uc.now().Add(RetryDelay)
	empty := ""
	err := uc.posts.Transition(ctx, repository.NoTX, jobID,
		[]model.PostStatus{model.PostStatusFailed}, model.PostStatusPending,
		repository.TransitionPatch{ScheduledFor: &fireAt, ErrorMessage: &empty})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("only failed jobs can be retried: %w", domain.ErrInvalidState)
		}
		return nil, err
	}

	if err := uc.queue.Enqueue(ctx, jobID, fireAt); err != nil {
		return nil, fmt.Errorf("re-enqueue job: %w", err)
	}

	uc.log.Info().Str("job_id", jobID).Time("fire_at", fireAt).Msg("job retry scheduled")
	return uc.posts.FindByID(ctx, repository.NoTX, jobID)
}

// MarkPosted records that the user manually shared a completed STORY render.
func (uc *ScheduleUseCase) MarkPosted(ctx context.Context, userID, jobID string) (*model.ScheduledPost, error) {
	post, err := uc.ownedPost(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if post.Status != model.PostStatusCompleted || post.PostType != model.PostTypeStory {
		return nil, fmt.Errorf("only completed story jobs can be marked posted: %w", domain.ErrInvalidState)
	}

	at := uc.now()
	if err := uc.posts.SetPostedAt(ctx, repository.NoTX, jobID, at); err != nil {
		return nil, err
	}
	post.PostedAt = &at
	uc.log.Info().Str("job_id", jobID).Msg("story marked as posted")
	return post, nil
}

// List returns the user's jobs, optionally filtered by status.
func (uc *ScheduleUseCase) List(ctx context.Context, userID string, status model.PostStatus) ([]*model.ScheduledPost, error) {
	if status != "" {
		switch status {
		case model.PostStatusPending, model.PostStatusProcessing, model.PostStatusCompleted, model.PostStatusFailed:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
		}
	}
	return uc.posts.FindByUser(ctx, repository.NoTX, userID, status)
}

// Notifications returns the user's notification history, newest first.
func (uc *ScheduleUseCase) Notifications(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return uc.notifs.FindByUser(ctx, repository.NoTX, userID, limit)
}

// ownedPost loads the job and hides other users' jobs behind ErrNotFound.
func (uc *ScheduleUseCase) ownedPost(ctx context.Context, userID, jobID string) (*model.ScheduledPost, error) {
	post, err := uc.posts.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return post, nil
}
