package queue

import (
	"postpilot/internal/repository"
	"postpilot/internal/service"
)

type Queue struct {
	pr        repository.PostRepository
	ac        repository.SocialAccountRepository
	usage     service.UsageService
	resolver  service.MediaResolver
	publisher service.PublisherService
}

func NewQueue(
	pr repository.PostRepository,
	ac repository.SocialAccountRepository,
	usage service.UsageService,
	resolver service.MediaResolver,
	publisher service.PublisherService) *Queue {
	return &Queue{
		pr:        pr,
		ac:        ac,
		usage:     usage,
		resolver:  resolver,
		publisher: publisher,
	}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}
