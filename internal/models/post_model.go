package models

import (
	"database/sql"
	"time"
)

type Post struct {
	ID             int64                    `db:"id" json:"id"`
	UserID         int64                    `db:"user_id" json:"user_id"`
	Title          string                   `db:"title" json:"title"`
	Content        string                   `db:"content" json:"content"`
	PostType       string                   `db:"post_type" json:"post_type"`
	MediaURL       string                   `db:"media_url" json:"media_url,omitempty"`
	IsReels        bool                     `db:"is_reels" json:"is_reels"`
	ScheduledDate  sql.NullTime             `db:"scheduled_date" json:"scheduled_date"`
	Status         string                   `db:"status" json:"status"`
	Platforms      []string                 `db:"platforms" json:"platforms"`
	PublishResults map[string]PublishResult `db:"publish_results" json:"publish_results,omitempty"`
	CreatedAt      time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time                `db:"updated_at" json:"updated_at"`
}

// PublishResult records the outcome of one publish attempt on one platform.
// PostID is set only on success, Error only on failure. Degraded marks
// attempts that went out with a placeholder substituted for inline media.
type PublishResult struct {
	Success     bool      `json:"success"`
	PostID      string    `json:"post_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

const (
	PostTypeText  = "text"
	PostTypeImage = "image"
	PostTypeVideo = "video"
)
