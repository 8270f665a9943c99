package notify

import (
	"context"

	"github.com/rs/zerolog"

	"story-scheduler/internal/domain/ports/adapter"
)

// NoOpPushSender logs the push instead of delivering it. Used when no FCM
// server key is configured.
type NoOpPushSender struct {
	log *zerolog.Logger
}

func NewNoOpPushSender(logger *zerolog.Logger) *NoOpPushSender {
	l := logger.With().Str("component", "NoOpPushSender").Logger()
	return &NoOpPushSender{log: &l}
}

func (s *NoOpPushSender) SendPush(ctx context.Context, msg adapter.PushMessage) (string, error) {
	s.log.Info().Str("title", msg.Title).Str("body", msg.Body).Msg("push suppressed (no-op sender)")
	return "noop", nil
}

// NoOpEmailSender logs the email instead of delivering it.
type NoOpEmailSender struct {
	log *zerolog.Logger
}

func NewNoOpEmailSender(logger *zerolog.Logger) *NoOpEmailSender {
	l := logger.With().Str("component", "NoOpEmailSender").Logger()
	return &NoOpEmailSender{log: &l}
}

func (s *NoOpEmailSender) SendEmail(ctx context.Context, to, subject, html string) (string, error) {
	s.log.Info().Str("to", to).Str("subject", subject).Msg("email suppressed (no-op sender)")
	return "noop", nil
}

var (
	_ adapter.PushSender  = (*NoOpPushSender)(nil)
	_ adapter.EmailSender = (*NoOpEmailSender)(nil)
)
