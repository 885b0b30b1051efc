package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		allowed, remaining := rl.Allow("1.2.3.4")
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining := rl.Allow("1.2.3.4")
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute, func() time.Time { return now })

	rl.Allow("1.2.3.4")
	rl.Allow("1.2.3.4")
	allowed, _ := rl.Allow("1.2.3.4")
	assert.False(t, allowed)

	now = now.Add(time.Minute)
	allowed, remaining := rl.Allow("1.2.3.4")
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute, func() time.Time { return now })

	allowed, _ := rl.Allow("1.2.3.4")
	assert.True(t, allowed)
	allowed, _ = rl.Allow("1.2.3.4")
	assert.False(t, allowed)

	// A different client has its own bucket.
	allowed, _ = rl.Allow("5.6.7.8")
	assert.True(t, allowed)
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0, nil)
	assert.Equal(t, defaultRateLimit, rl.limit)
	assert.Equal(t, defaultRateWindow, rl.window)
}
