package model

import "time"

// InstagramAccount holds a user's long-lived Graph API token and its absolute
// expiry. Tokens are refreshed by a periodic sweep; the publish path only ever
// checks expiry and fails fast.
type InstagramAccount struct {
	ID             string
	UserID         string
	IGUserID       string
	Username       string
	AccessToken    string
	TokenExpiresAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *InstagramAccount) Expired(now time.Time) bool {
	return !a.TokenExpiresAt.After(now)
}
