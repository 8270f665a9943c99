// File: internal/infra/worker/post_processor.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"story-scheduler/internal/domain"
	"story-scheduler/internal/domain/model"
	"story-scheduler/internal/domain/ports/adapter"
	"story-scheduler/internal/domain/ports/repository"
	"story-scheduler/internal/infra/logging"
	"story-scheduler/internal/infra/metrics"
	"story-scheduler/internal/render"
)

// claimFrom lists the statuses a fired job may be claimed from. FAILED is
// included so queue-level retries of a nacked entry can re-enter directly.
var claimFrom = []model.PostStatus{model.PostStatusPending, model.PostStatusFailed}

// PostProcessor executes one fired job end to end: claim, render, upload,
// optionally publish to Instagram, complete, notify. Its Process method is the
// queue dispatcher's Handler.
type PostProcessor struct {
	posts         repository.ScheduledPostRepository
	accounts      repository.InstagramAccountRepository
	notifications repository.NotificationRepository
	devices       repository.DeviceTokenRepository
	contacts      repository.UserContactRepository

	renderer  *render.Renderer
	store     adapter.ImageStore
	publisher adapter.InstagramPublisher
	push      adapter.PushSender
	email     adapter.EmailSender

	httpClient *http.Client
	folder     string
	staleAfter time.Duration
	log        *zerolog.Logger
	now        func() time.Time
}

type PostProcessorDeps struct {
	Posts         repository.ScheduledPostRepository
	Accounts      repository.InstagramAccountRepository
	Notifications repository.NotificationRepository
	Devices       repository.DeviceTokenRepository
	Contacts      repository.UserContactRepository
	Renderer      *render.Renderer
	Store         adapter.ImageStore
	Publisher     adapter.InstagramPublisher
	Push          adapter.PushSender
	Email         adapter.EmailSender
	UploadFolder  string

	// StaleAfter is how long a PROCESSING row may sit untouched before a
	// redelivery may reclaim it. Matches the queue lease duration.
	StaleAfter time.Duration
}

func NewPostProcessor(deps PostProcessorDeps, logger *zerolog.Logger) *PostProcessor {
	l := logger.With().Str("component", "PostProcessor").Logger()
	if deps.StaleAfter <= 0 {
		deps.StaleAfter = 5 * time.Minute
	}
	return &PostProcessor{
		posts:         deps.Posts,
		accounts:      deps.Accounts,
		notifications: deps.Notifications,
		devices:       deps.Devices,
		contacts:      deps.Contacts,
		renderer:      deps.Renderer,
		store:         deps.Store,
		publisher:     deps.Publisher,
		push:          deps.Push,
		email:         deps.Email,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		folder:        deps.UploadFolder,
		staleAfter:    deps.StaleAfter,
		log:           &l,
		now:           time.Now,
	}
}

// Process runs the pipeline for one fired job id. A nil return acks the queue
// entry; an error nacks it into the retry path. Losing the claim race returns
// nil so duplicate deliveries are absorbed silently.
func (p *PostProcessor) Process(ctx context.Context, jobID string) error {
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, p.log)

	post, err := p.posts.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("fired job no longer exists, dropping")
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}
	ctx = logging.WithUserID(ctx, post.UserID)
	log = logging.With(ctx, p.log)

	if err := p.claim(ctx, log, jobID, post); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Info().Str("status", string(post.Status)).Msg("claim lost, another worker owns the job")
			return nil
		}
		return err
	}
	log.Info().Str("post_type", string(post.PostType)).Str("theme", post.Theme).Msg("job claimed")

	result, err := p.renderer.Render(render.Request{
		Text:           post.Content.Text,
		AuthorName:     post.Content.AuthorName,
		AuthorUsername: post.Content.AuthorUsername,
		AvatarImage:    p.fetchAvatar(ctx, post.Content.AuthorImageURL),
		PostedAt:       post.Content.PostedAt,
		Theme:          post.Theme,
	})
	if err != nil {
		return p.fail(ctx, post, fmt.Errorf("render: %w", err))
	}

	upload, err := p.store.Upload(ctx, result.PNG, p.folder)
	if err != nil {
		return p.fail(ctx, post, fmt.Errorf("upload image: %w", err))
	}
	log.Info().Str("image_url", upload.URL).Msg("image uploaded")

	patch := repository.TransitionPatch{ImageURL: &upload.URL}
	var permalink string

	if post.PostType == model.PostTypePost {
		mediaID, link, err := p.publish(ctx, post, upload.URL)
		if err != nil {
			return p.fail(ctx, post, err)
		}
		publishedAt := p.now()
		patch.InstagramMediaID = &mediaID
		patch.PublishedAt = &publishedAt
		permalink = link
	}

	if err := p.posts.Transition(ctx, repository.NoTX, jobID, []model.PostStatus{model.PostStatusProcessing}, model.PostStatusCompleted, patch); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Warn().Msg("completion transition lost, job moved concurrently")
			return nil
		}
		return fmt.Errorf("complete job: %w", err)
	}
	log.Info().Msg("job completed")

	p.notifySuccess(ctx, post, upload.URL, permalink)
	return nil
}

// claim takes ownership of the job. The normal path is the conditional
// transition from {PENDING, FAILED}; when that conflicts against a PROCESSING
// row, a reclaim is attempted so a run that died mid-flight (panic, process
// crash) is recovered on redelivery instead of stranding the job forever.
// Returns domain.ErrConflict when another worker genuinely owns the job.
func (p *PostProcessor) claim(ctx context.Context, log *zerolog.Logger, jobID string, post *model.ScheduledPost) error {
	err := p.posts.Transition(ctx, repository.NoTX, jobID, claimFrom, model.PostStatusProcessing, repository.TransitionPatch{})
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("claim job: %w", err)
	}

	staleBefore := p.now().Add(-p.staleAfter)
	rerr := p.posts.Reclaim(ctx, repository.NoTX, jobID, staleBefore)
	if rerr == nil {
		log.Warn().Msg("reclaimed a stale processing run")
		return nil
	}
	if errors.Is(rerr, domain.ErrConflict) {
		return domain.ErrConflict
	}
	return fmt.Errorf("reclaim job: %w", rerr)
}

// publish runs the Graph API protocol for POST-type jobs. Token expiry is
// checked up front so expired credentials fail fast instead of burning the
// 60-second poll budget.
func (p *PostProcessor) publish(ctx context.Context, post *model.ScheduledPost, imageURL string) (mediaID, permalink string, err error) {
	account, err := p.accounts.FindByUser(ctx, repository.NoTX, post.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", errors.New("instagram account not connected")
		}
		return "", "", fmt.Errorf("load instagram account: %w", err)
	}
	if account.Expired(p.now()) {
		metrics.IncPublish("token_expired")
		return "", "", domain.ErrTokenExpired
	}

	containerID, err := p.publisher.CreateContainer(ctx, account.AccessToken, account.IGUserID, imageURL, post.Content.Text)
	if err != nil {
		metrics.IncPublish("error")
		return "", "", fmt.Errorf("create container: %w", err)
	}
	if err := p.publisher.WaitUntilFinished(ctx, account.AccessToken, containerID); err != nil {
		metrics.IncPublish("error")
		return "", "", fmt.Errorf("container processing: %w", err)
	}
	mediaID, err = p.publisher.Publish(ctx, account.AccessToken, account.IGUserID, containerID)
	if err != nil {
		metrics.IncPublish("error")
		return "", "", fmt.Errorf("publish container: %w", err)
	}
	metrics.IncPublish("published")

	permalink, err = p.publisher.Permalink(ctx, account.AccessToken, mediaID)
	if err != nil {
		p.log.Warn().Err(err).Str("media_id", mediaID).Msg("permalink lookup failed, continuing without it")
		permalink = ""
	}
	return mediaID, permalink, nil
}

// fail moves the job to FAILED with the error message, sends the failure
// notification, and returns the cause so the queue records the attempt.
func (p *PostProcessor) fail(ctx context.Context, post *model.ScheduledPost, cause error) error {
	msg := cause.Error()
	err := p.posts.Transition(ctx, repository.NoTX, post.ID,
		[]model.PostStatus{model.PostStatusProcessing}, model.PostStatusFailed,
		repository.TransitionPatch{ErrorMessage: &msg})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		p.log.Error().Err(err).Str("job_id", post.ID).Msg("failure transition failed")
	}

	body := "We couldn't prepare your scheduled post. Tap to retry."
	if errors.Is(cause, domain.ErrTokenExpired) {
		body = "Your Instagram connection expired. Reconnect to keep publishing."
	}
	p.fanOut(ctx, post, model.NotificationPostFailed, "Scheduled post failed", body, "")
	return cause
}

func (p *PostProcessor) notifySuccess(ctx context.Context, post *model.ScheduledPost, imageURL, permalink string) {
	if post.PostType == model.PostTypePost {
		body := "Your post is live on Instagram."
		if permalink != "" {
			body = "Your post is live: " + permalink
		}
		p.fanOut(ctx, post, model.NotificationPostPublished, "Posted to Instagram", body, imageURL)
	} else {
		p.fanOut(ctx, post, model.NotificationPostReady, "Your story is ready", "Open the app to share it to your story.", imageURL)
	}

	notifiedAt := p.now()
	err := p.posts.Transition(ctx, repository.NoTX, post.ID,
		[]model.PostStatus{model.PostStatusCompleted}, model.PostStatusCompleted,
		repository.TransitionPatch{NotifiedAt: &notifiedAt})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		p.log.Error().Err(err).Str("job_id", post.ID).Msg("notified-at stamp failed")
	}
}

// fanOut persists the notification record and delivers it over every channel.
// Delivery is best-effort: failures are logged and counted, never escalated.
func (p *PostProcessor) fanOut(ctx context.Context, post *model.ScheduledPost, kind model.NotificationKind, title, body, imageURL string) {
	n := &model.Notification{
		ID:        ulid.Make().String(),
		UserID:    post.UserID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		ImageURL:  imageURL,
		PostID:    post.PostID,
		CreatedAt: p.now(),
	}
	if err := p.notifications.Save(ctx, repository.NoTX, n); err != nil {
		p.log.Error().Err(err).Str("job_id", post.ID).Msg("persist notification failed")
	}

	tokens, err := p.devices.FindByUser(ctx, repository.NoTX, post.UserID)
	if err != nil {
		p.log.Error().Err(err).Str("user_id", post.UserID).Msg("load device tokens failed")
	}
	for _, t := range tokens {
		_, err := p.push.SendPush(ctx, adapter.PushMessage{
			Token:    t.Token,
			Title:    title,
			Body:     body,
			ImageURL: imageURL,
			Data:     map[string]string{"kind": string(kind), "postId": post.PostID},
		})
		metrics.IncNotify("push", err == nil)
		if err != nil {
			p.log.Warn().Err(err).Str("device_id", t.ID).Msg("push delivery failed")
		}
	}

	address, err := p.contacts.EmailByUser(ctx, repository.NoTX, post.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Str("user_id", post.UserID).Msg("load contact email failed")
		}
		return
	}
	if address == "" {
		return
	}
	html := fmt.Sprintf("<h2>%s</h2><p>%s</p>", title, body)
	if imageURL != "" {
		html += fmt.Sprintf(`<p><img src=%q alt="scheduled post" width="400"/></p>`, imageURL)
	}
	if _, err := p.email.SendEmail(ctx, address, title, html); err != nil {
		metrics.IncNotify("email", false)
		p.log.Warn().Err(err).Str("user_id", post.UserID).Msg("email delivery failed")
	} else {
		metrics.IncNotify("email", true)
	}
}

// fetchAvatar pulls the author image for the render. Best-effort: any failure
// yields a nil slice and the renderer falls back to its placeholder disc.
func (p *PostProcessor) fetchAvatar(ctx context.Context, url string) []byte {
	if url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Str("url", url).Msg("avatar fetch failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil
	}
	return data
}
