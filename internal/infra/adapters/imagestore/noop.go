package imagestore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"story-scheduler/internal/domain/ports/adapter"
)

// NoOpStore pretends to upload and hands back a placeholder URL. Used in
// development when no Cloudinary credentials are configured. The URL is not
// actually fetchable, so publishing against the real Graph API will fail.
type NoOpStore struct {
	log *zerolog.Logger
}

func NewNoOpStore(logger *zerolog.Logger) *NoOpStore {
	l := logger.With().Str("component", "NoOpImageStore").Logger()
	return &NoOpStore{log: &l}
}

func (s *NoOpStore) Upload(ctx context.Context, data []byte, folder string) (*adapter.UploadResult, error) {
	id := uuid.NewString()
	s.log.Info().Str("public_id", id).Int("bytes", len(data)).Msg("upload suppressed (no-op store)")
	return &adapter.UploadResult{
		URL:      fmt.Sprintf("https://images.invalid/%s/%s.png", folder, id),
		PublicID: folder + "/" + id,
		Width:    1080,
		Height:   1080,
	}, nil
}

func (s *NoOpStore) Delete(ctx context.Context, publicID string) error {
	s.log.Info().Str("public_id", publicID).Msg("delete suppressed (no-op store)")
	return nil
}

var _ adapter.ImageStore = (*NoOpStore)(nil)
