package job

import (
	"context"
	"log/slog"
	"time"

	"postpilot/internal/repository"
)

type TokenExpiryJob struct {
	sr repository.SocialAccountRepository
}

func NewTokenExpiryJob(sr repository.SocialAccountRepository) *TokenExpiryJob {
	return &TokenExpiryJob{
		sr: sr,
	}
}

// DeactivateExpired marks credentials past their expiry as inactive. Page
// tokens cannot be refreshed server-side, so the account stays connected
// in name only until the user re-authorizes through the consent flow.
func (c *TokenExpiryJob) DeactivateExpired() {
	ctx := context.Background()

	count, err := c.sr.DeactivateExpired(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return
	}

	if count > 0 {
		slog.Info("expired credentials deactivated", slog.Int64("count", count))
	}
}
