package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultRateLimit  = 30
	defaultRateWindow = time.Minute

	// Stale buckets are dropped once the map grows past this to keep
	// memory bounded regardless of client churn.
	maxTrackedClients = 10000
)

// RateLimiter counts requests per client IP over a fixed window. The clock
// is injected so window rollover can be tested without sleeping.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	limit   int
	window  time.Duration
	now     func() time.Time
}

type rateBucket struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		buckets: make(map[string]*rateBucket),
		limit:   limit,
		window:  window,
		now:     now,
	}
}

// Allow records a request for the client and reports whether it is within
// the limit, along with the requests remaining in the current window.
func (rl *RateLimiter) Allow(clientIP string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	if len(rl.buckets) >= maxTrackedClients {
		rl.evictStale(now)
	}

	bucket, ok := rl.buckets[clientIP]
	if !ok || now.Sub(bucket.windowStart) >= rl.window {
		bucket = &rateBucket{windowStart: now}
		rl.buckets[clientIP] = bucket
	}

	if bucket.count >= rl.limit {
		return false, 0
	}

	bucket.count++
	return true, rl.limit - bucket.count
}

func (rl *RateLimiter) evictStale(now time.Time) {
	for ip, bucket := range rl.buckets {
		if now.Sub(bucket.windowStart) >= rl.window {
			delete(rl.buckets, ip)
		}
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, remaining := rl.Allow(c.IP())

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later",
			})
		}

		return c.Next()
	}
}
