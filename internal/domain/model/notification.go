package model

import "time"

type NotificationKind string

const (
	NotificationPostReady     NotificationKind = "POST_READY"
	NotificationPostPublished NotificationKind = "POST_PUBLISHED"
	NotificationPostFailed    NotificationKind = "POST_FAILED"
	NotificationReminder      NotificationKind = "REMINDER"
)

// Notification is the persisted history record of one fan-out event.
type Notification struct {
	ID        string // ULID, sortable by creation time
	UserID    string
	Kind      NotificationKind
	Title     string
	Body      string
	ImageURL  string
	PostID    string
	CreatedAt time.Time
}

// DeviceToken is one registered push target for a user. A user may have many;
// each is notified individually and failures are isolated per token.
type DeviceToken struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
}
