package model

import (
	"time"

	"github.com/google/uuid"
)

type PostStatus string

const (
	PostStatusPending    PostStatus = "PENDING"
	PostStatusProcessing PostStatus = "PROCESSING"
	PostStatusCompleted  PostStatus = "COMPLETED"
	PostStatusFailed     PostStatus = "FAILED"
)

type PostType string

const (
	PostTypeStory PostType = "STORY"
	PostTypePost  PostType = "POST"
)

// jobNamespace seeds the deterministic job id derivation. Re-scheduling the
// same source post always yields the same job id, which the queue uses as its
// dedup key.
var jobNamespace = uuid.MustParse("8a44a6c1-7b5e-4c43-9f2f-1d20c1b4e9aa")

// JobID derives the scheduled-post id from the owning source post id.
func JobID(postID string) string {
	return uuid.NewSHA1(jobNamespace, []byte(postID)).String()
}

// PostContent is the snapshot of the source post carried on the job so the
// processor never goes back to the social-graph API.
type PostContent struct {
	Text           string
	AuthorName     string
	AuthorUsername string
	AuthorImageURL string
	PostedAt       *time.Time
}

// ScheduledPost is the unit of work of the delivery pipeline: one scheduled
// render (+ optional Instagram publish) tied to a source post and a fire time.
type ScheduledPost struct {
	ID           string
	UserID       string
	PostID       string
	Content      PostContent
	Theme        string
	PostType     PostType
	ScheduledFor time.Time
	Status       PostStatus

	ImageURL         string
	InstagramMediaID string
	PublishedAt      *time.Time
	PostedAt         *time.Time
	NotifiedAt       *time.Time
	ErrorMessage     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the job still occupies the per-post uniqueness slot.
func (s PostStatus) Active() bool {
	return s == PostStatusPending || s == PostStatusProcessing
}

// Terminal reports whether the status is absorbing (modulo explicit user retry).
func (s PostStatus) Terminal() bool {
	return s == PostStatusCompleted || s == PostStatusFailed
}
