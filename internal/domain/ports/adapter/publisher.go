package adapter

import "context"

// InstagramPublisher drives the Graph API content-publishing protocol:
// container create -> status poll -> publish -> permalink, plus the
// out-of-band long-lived token refresh.
type InstagramPublisher interface {
	CreateContainer(ctx context.Context, accessToken, igUserID, imageURL, caption string) (containerID string, err error)

	// WaitUntilFinished polls the container status until FINISHED. It is
	// bounded (30 attempts, 2s apart) and raises a terminal error on
	// ERROR/EXPIRED/PUBLISHED or any unknown status code without retrying.
	WaitUntilFinished(ctx context.Context, accessToken, containerID string) error

	Publish(ctx context.Context, accessToken, igUserID, containerID string) (mediaID string, err error)

	// Permalink is best-effort: a failure is reported as ("", nil) by callers
	// that treat the permalink as informational only.
	Permalink(ctx context.Context, accessToken, mediaID string) (string, error)

	// RefreshToken exchanges a not-yet-expired long-lived token for a new one.
	RefreshToken(ctx context.Context, accessToken string) (newToken string, expiresInSeconds int64, err error)
}
