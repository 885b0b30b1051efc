package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "postpilot/configs"
	"postpilot/internal/models"
	"postpilot/pkg/utils"
)

// Container status codes reported by the platform while media is processing.
const (
	containerStatusInProgress = "IN_PROGRESS"
	containerStatusFinished   = "FINISHED"
	containerStatusError      = "ERROR"
)

// PlatformClient is the capability a platform must offer to be publishable:
// the container-based asynchronous protocol of create, poll, publish.
type PlatformClient interface {
	CreateContainer(ctx context.Context, accountID, accessToken string, post *models.Post, mediaURL string) (string, error)
	ContainerStatus(ctx context.Context, containerID, accessToken string) (string, error)
	PublishContainer(ctx context.Context, accountID, containerID, accessToken string) (string, error)
}

// PollPolicy bounds the video processing wait. The delay grows linearly, not
// exponentially, because the platform's processing time is roughly bounded
// and predictable.
type PollPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	DelayStep   time.Duration
	MaxDelay    time.Duration
	// RetryDelay is used when the poll request itself fails; the failure is
	// inconclusive and counts against the same attempt budget.
	RetryDelay time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MaxAttempts: 120,
		BaseDelay:   3 * time.Second,
		DelayStep:   200 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		RetryDelay:  8 * time.Second,
	}
}

func (p PollPolicy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay + time.Duration(attempt)*p.DelayStep
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

type PublisherService interface {
	Publish(ctx context.Context, account *models.SocialAccount, post *models.Post, mediaURL string) models.PublishResult
}

type publisherService struct {
	cfg     config.Config
	clients map[string]PlatformClient
	poll    PollPolicy
}

func NewPublisherService(cfg config.Config, ig PlatformClient) PublisherService {
	return &publisherService{
		cfg: cfg,
		clients: map[string]PlatformClient{
			models.PlatformInstagram: ig,
			models.PlatformTwitter:   comingSoonClient{},
			models.PlatformLinkedin:  comingSoonClient{},
		},
		poll: DefaultPollPolicy(),
	}
}

// Publish drives one post+account through container create, status poll and
// container publish. It never returns an error: every path, including internal
// ones, terminates in a PublishResult so callers reduce results uniformly.
func (s *publisherService) Publish(ctx context.Context, account *models.SocialAccount, post *models.Post, mediaURL string) models.PublishResult {
	client, ok := s.clients[account.Platform]
	if !ok {
		return failure(fmt.Sprintf("unsupported platform %q", account.Platform))
	}

	accessToken, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		slog.Info(err.Error())
		return failure("stored credential could not be read, please reconnect the account")
	}

	// CREATING. Container creation failures are deterministic (a bad URL will
	// not succeed on retry), so there is no retry at this stage.
	containerID, err := client.CreateContainer(ctx, account.AccountID, accessToken, post, mediaURL)
	if err != nil {
		return failure(err.Error())
	}

	slog.Info("media container created", "post_id", post.ID, "platform", account.Platform, "container_id", containerID)

	// POLLING, video only. Image containers are ready immediately.
	if post.PostType == models.PostTypeVideo {
		if result, ok := s.waitForContainer(ctx, client, containerID, accessToken); !ok {
			return result
		}
	}

	// PUBLISHING.
	externalID, err := client.PublishContainer(ctx, account.AccountID, containerID, accessToken)
	if err != nil {
		return failure(err.Error())
	}

	slog.Info("post published", "post_id", post.ID, "platform", account.Platform, "external_id", externalID)

	return models.PublishResult{
		Success:     true,
		PostID:      externalID,
		AttemptedAt: time.Now(),
	}
}

// waitForContainer polls until the container reaches FINISHED. ok=false means
// the returned result is a terminal failure.
func (s *publisherService) waitForContainer(ctx context.Context, client PlatformClient, containerID, accessToken string) (models.PublishResult, bool) {
	started := time.Now()

	for attempt := 0; attempt < s.poll.MaxAttempts; attempt++ {
		status, err := client.ContainerStatus(ctx, containerID, accessToken)
		if err != nil {
			// Inconclusive: the container may be fine even if this poll was not.
			slog.Warn("container status check failed", "container_id", containerID,
				"attempt", attempt+1, "error", err.Error())
			if !s.sleep(ctx, s.poll.RetryDelay) {
				return failure("publish canceled while waiting for video processing"), false
			}
			continue
		}

		switch status {
		case containerStatusFinished:
			return models.PublishResult{}, true
		case containerStatusError:
			return failure("video processing failed on the platform: unsupported format, file too large, or invalid codec"), false
		default:
			// Still processing.
			if !s.sleep(ctx, s.poll.delayFor(attempt)) {
				return failure("publish canceled while waiting for video processing"), false
			}
		}
	}

	elapsed := time.Since(started)
	return failure(fmt.Sprintf("video processing timed out after %.1f minutes (%d status checks)",
		elapsed.Minutes(), s.poll.MaxAttempts)), false
}

func (s *publisherService) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func failure(message string) models.PublishResult {
	return models.PublishResult{
		Success:     false,
		Error:       message,
		AttemptedAt: time.Now(),
	}
}

// comingSoonClient stands in for platforms that are announced but not yet
// supported. Every operation fails with the same fixed message.
type comingSoonClient struct{}

func (comingSoonClient) CreateContainer(context.Context, string, string, *models.Post, string) (string, error) {
	return "", &ExternalError{Message: "Coming Soon"}
}

func (comingSoonClient) ContainerStatus(context.Context, string, string) (string, error) {
	return "", &ExternalError{Message: "Coming Soon"}
}

func (comingSoonClient) PublishContainer(context.Context, string, string, string) (string, error) {
	return "", &ExternalError{Message: "Coming Soon"}
}
