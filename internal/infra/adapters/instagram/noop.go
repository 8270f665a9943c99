package instagram

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"story-scheduler/internal/domain/ports/adapter"
)

// NoOpPublisher fakes the publish protocol for development runs without an
// Instagram app. Every call succeeds immediately.
type NoOpPublisher struct {
	log *zerolog.Logger
}

func NewNoOpPublisher(logger *zerolog.Logger) *NoOpPublisher {
	l := logger.With().Str("component", "NoOpPublisher").Logger()
	return &NoOpPublisher{log: &l}
}

func (p *NoOpPublisher) CreateContainer(ctx context.Context, accessToken, igUserID, imageURL, caption string) (string, error) {
	id := "noop-container-" + uuid.NewString()
	p.log.Info().Str("container_id", id).Str("image_url", imageURL).Msg("container faked (no-op publisher)")
	return id, nil
}

func (p *NoOpPublisher) WaitUntilFinished(ctx context.Context, accessToken, containerID string) error {
	return nil
}

func (p *NoOpPublisher) Publish(ctx context.Context, accessToken, igUserID, containerID string) (string, error) {
	id := "noop-media-" + uuid.NewString()
	p.log.Info().Str("media_id", id).Msg("publish faked (no-op publisher)")
	return id, nil
}

func (p *NoOpPublisher) Permalink(ctx context.Context, accessToken, mediaID string) (string, error) {
	return "https://www.instagram.com/p/noop/", nil
}

func (p *NoOpPublisher) RefreshToken(ctx context.Context, accessToken string) (string, int64, error) {
	return accessToken, 5184000, nil
}

var _ adapter.InstagramPublisher = (*NoOpPublisher)(nil)
