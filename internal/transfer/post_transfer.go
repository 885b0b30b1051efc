package transfer

import "github.com/golang-jwt/jwt/v5"

type PostCreation struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	PostType      string   `json:"post_type"`
	MediaURL      string   `json:"media_url"`
	IsReels       bool     `json:"is_reels"`
	ScheduledDate string   `json:"scheduled_date"`
	Status        string   `json:"status"`
	Platforms     []string `json:"platforms"`
}

type PostUpdate struct {
	Title         *string   `json:"title"`
	Content       *string   `json:"content"`
	PostType      *string   `json:"post_type"`
	MediaURL      *string   `json:"media_url"`
	IsReels       *bool     `json:"is_reels"`
	ScheduledDate *string   `json:"scheduled_date"`
	Status        *string   `json:"status"`
	Platforms     *[]string `json:"platforms"`
}

// LimitStatus is the quota gate's answer for one (user, action) pair.
// Limit == -1 means unlimited.
type LimitStatus struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
