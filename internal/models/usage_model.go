package models

import "time"

// UsageStats holds one day's usage counters for a user. Rows are unique
// per (user_id, date) and only ever mutated by atomic increments.
type UsageStats struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	Date            time.Time `db:"date"`
	ImagesGenerated int       `db:"images_generated"`
	PostsPublished  int       `db:"posts_published"`
	ChatMessages    int       `db:"chat_messages"`
}

const (
	UsageActionImages = "images_generated"
	UsageActionPosts  = "posts_published"
	UsageActionChat   = "chat_messages"
)
