package adapter

import "context"

type PushMessage struct {
	Token    string
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

// PushSender delivers one push notification to one device token. The
// processor treats it as fire-and-forget: errors are logged, never escalated.
type PushSender interface {
	SendPush(ctx context.Context, msg PushMessage) (messageID string, err error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html string) (messageID string, err error)
}
