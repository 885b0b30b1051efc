package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"postpilot/internal/models"
	"postpilot/internal/queue"
	"postpilot/internal/repository"
)

type PublishJob struct {
	pr     repository.PostRepository
	client *asynq.Client
}

func NewPublishJob(pr repository.PostRepository, client *asynq.Client) *PublishJob {
	return &PublishJob{
		pr:     pr,
		client: client,
	}
}

// SweepDuePosts finds scheduled posts whose time has arrived, claims each
// one, and hands it to the task queue. The claim is a conditional update,
// so two overlapping sweeps can never enqueue the same post twice.
func (c *PublishJob) SweepDuePosts() {
	ctx := context.Background()

	posts, err := c.pr.ListDue(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, post := range posts {
		claimed, err := c.pr.Claim(ctx, post.ID)
		if err != nil {
			slog.Info(err.Error())
			continue
		}
		if !claimed {
			// Another sweep got there first.
			continue
		}

		err = queue.EnqueuePost(c.client, queue.PublishPostPayload{PostID: post.ID})
		if err != nil {
			slog.Info(err.Error())
			// Release the claim so the next sweep retries the post.
			if err := c.pr.SetStatus(ctx, post.ID, models.PostStatusScheduled); err != nil {
				slog.Error(err.Error())
			}
		}
	}
}
