package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"postpilot/internal/models"
	"postpilot/internal/service"
)

// ErrPublishInProgress means the post could not be claimed because another
// caller (a second request or the scheduler sweep) already holds it, or it
// is already published.
var ErrPublishInProgress = errors.New("post is already publishing or published")

func (j *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return j.PublishPost(ctx, payload.PostID)
}

// PublishNow claims the post out of any restartable status and runs the
// pipeline synchronously. The claim is the same conditional update the
// scheduler sweep uses, so a concurrent sweep or a second interactive
// request can never double-issue external attempts for one post.
func (j *Queue) PublishNow(ctx context.Context, postID int64) error {
	claimed, err := j.pr.ClaimFrom(ctx, postID, []string{
		models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusFailed,
	})
	if err != nil {
		return err
	}
	if !claimed {
		return ErrPublishInProgress
	}

	return j.PublishPost(ctx, postID)
}

// PublishPost runs the full publish pipeline for a post that is already in
// the publishing state. Per-platform failures are captured in the stored
// outcome rather than returned; an error here means the pipeline itself
// could not run.
func (j *Queue) PublishPost(ctx context.Context, postID int64) error {
	post, err := j.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}

	results := make(map[string]models.PublishResult)

	// Quota is checked once per post, not per platform. A blocked post
	// records the same outcome for every target. A gate read failure is
	// terminal too: the post is already claimed, so the failure must land
	// in the stored results rather than leave the post stuck in publishing.
	limit, err := j.usage.CheckLimit(ctx, post.UserID, models.UsageActionPosts)
	if err != nil {
		slog.Info(err.Error())
		for _, platform := range post.Platforms {
			results[platform] = failedResult("publishing limit could not be verified: " + err.Error())
		}
		return j.finish(ctx, post, results)
	}
	if !limit.Allowed {
		quotaErr := &service.QuotaExceededError{Status: *limit}
		for _, platform := range post.Platforms {
			results[platform] = failedResult(quotaErr.Error())
		}
		return j.finish(ctx, post, results)
	}

	// Media is resolved once and the resolved URL is shared by every
	// platform. A post that fails resolution fails on all targets without
	// any external call.
	var mediaURL string
	var degraded bool
	if post.PostType != models.PostTypeText {
		resolved, err := j.resolver.Resolve(ctx, post.MediaURL, post.PostType)
		if err != nil {
			slog.Info(err.Error())
			for _, platform := range post.Platforms {
				results[platform] = failedResult(err.Error())
			}
			return j.finish(ctx, post, results)
		}
		mediaURL = resolved.URL
		degraded = resolved.Degraded
		if degraded {
			slog.Warn("media degraded to placeholder", slog.Int64("post_id", post.ID))
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, 10) // Concurrency limit

	postToPlatform := func(platform string) {
		defer wg.Done()
		defer func() { <-semaphore }()

		account, err := j.ac.GetActive(ctx, post.UserID, platform)
		if err != nil {
			slog.Info(err.Error())
			mu.Lock()
			results[platform] = failedResult("error loading account")
			mu.Unlock()
			return
		}
		if account == nil {
			mu.Lock()
			results[platform] = failedResult(fmt.Sprintf("%s account not connected", platform))
			mu.Unlock()
			return
		}

		result := j.publisher.Publish(ctx, account, post, mediaURL)
		result.Degraded = degraded
		if result.Success {
			if err := j.usage.TrackUsage(ctx, post.UserID, models.UsageActionPosts, 1); err != nil {
				slog.Info(err.Error())
			}
		}

		mu.Lock()
		results[platform] = result
		mu.Unlock()
	}

	for _, platform := range post.Platforms {
		wg.Add(1)
		semaphore <- struct{}{}
		go postToPlatform(platform)
	}

	wg.Wait()
	return j.finish(ctx, post, results)
}

// finish reduces per-platform results to the post's final status and
// persists the outcome. A post counts as published when at least one
// platform accepted it.
func (j *Queue) finish(ctx context.Context, post *models.Post, results map[string]models.PublishResult) error {
	status := models.PostStatusFailed
	for _, r := range results {
		if r.Success {
			status = models.PostStatusPublished
			break
		}
	}

	if err := j.pr.SetOutcome(ctx, post.ID, status, results); err != nil {
		slog.Error(err.Error())
		return err
	}

	slog.Info("publish pipeline finished",
		slog.Int64("post_id", post.ID),
		slog.String("status", status))
	return nil
}

func failedResult(message string) models.PublishResult {
	return models.PublishResult{
		Success:     false,
		Error:       message,
		AttemptedAt: time.Now(),
	}
}
