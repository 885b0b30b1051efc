package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postpilot/internal/models"
	"postpilot/internal/repository"
	"postpilot/internal/transfer"
)

const scheduledDateLayout = "2006-01-02T15:04"

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, error)
	List(ctx context.Context, userID int64, status string) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	UpdatePost(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) error
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	pr repository.PostRepository
}

func NewPostService(pr repository.PostRepository) PostService {
	return &postService{
		pr: pr,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, err
	}
	if userID == 0 {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return 0, err
	}

	post := models.Post{
		UserID:    userID,
		Title:     pc.Title,
		Content:   pc.Content,
		PostType:  pc.PostType,
		MediaURL:  pc.MediaURL,
		IsReels:   pc.IsReels,
		Status:    pc.Status,
		Platforms: pc.Platforms,
	}
	if post.Status == "" {
		post.Status = models.PostStatusDraft
	}

	if pc.ScheduledDate != "" {
		scheduledDate, err := time.Parse(scheduledDateLayout, pc.ScheduledDate)
		if err != nil {
			err = fmt.Errorf("invalid scheduled date format: %w", err)
			slog.Error(err.Error())
			return 0, &ValidationError{Reason: err.Error()}
		}
		post.ScheduledDate = sql.NullTime{Time: scheduledDate, Valid: true}
	}

	if err := validatePost(&post, time.Now()); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	// Normalize the sharing link shape up front so the stored URL is already
	// directly fetchable. Reachability is still re-probed at publish time.
	if post.MediaURL != "" {
		post.MediaURL = RewriteSharingURL(post.MediaURL)
	}

	postID, err := s.pr.Create(ctx, &post)
	if err != nil {
		return 0, fmt.Errorf("error creating post: %w", err)
	}

	return postID, nil
}

func validatePost(post *models.Post, now time.Time) error {
	if post.Content == "" {
		return &ValidationError{Reason: "content cannot be empty"}
	}

	switch post.PostType {
	case models.PostTypeText, models.PostTypeImage, models.PostTypeVideo:
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown post type %q", post.PostType)}
	}

	if post.PostType != models.PostTypeText && post.MediaURL == "" {
		return &ValidationError{Reason: "media URL is required for image and video posts"}
	}
	if post.IsReels && post.PostType != models.PostTypeVideo {
		return &ValidationError{Reason: "reels must be video content"}
	}

	if len(post.Platforms) == 0 {
		return &ValidationError{Reason: "at least one platform must be selected"}
	}
	for _, platform := range post.Platforms {
		switch platform {
		case models.PlatformInstagram, models.PlatformTwitter, models.PlatformLinkedin:
		default:
			return &ValidationError{Reason: fmt.Sprintf("unknown platform %q", platform)}
		}
	}

	switch post.Status {
	case models.PostStatusDraft:
	case models.PostStatusScheduled:
		if !post.ScheduledDate.Valid {
			return &ValidationError{Reason: "scheduled posts require a scheduled date"}
		}
		if !post.ScheduledDate.Time.After(now) {
			return &ValidationError{Reason: "scheduled date must be in the future"}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("posts cannot be created with status %q", post.Status)}
	}

	return nil
}

func (s *postService) List(ctx context.Context, userID int64, status string) ([]*models.Post, error) {
	posts, err := s.pr.ListByUserID(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("error getting posts")
	}
	return posts, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	if userID == 0 {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	if postID == 0 {
		err := errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	return post, nil
}

// UpdatePost mutates draft/scheduled fields. Posts already picked up by the
// scheduler or in a terminal state are immutable through this path.
func (s *postService) UpdatePost(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) error {
	post, err := s.PostInfo(ctx, postID, userID)
	if err != nil {
		return err
	}
	if post == nil {
		return errors.New("post doesn't exist")
	}

	if post.Status != models.PostStatusDraft && post.Status != models.PostStatusScheduled {
		return &ValidationError{Reason: fmt.Sprintf("posts with status %q cannot be edited", post.Status)}
	}

	if pu.Title != nil {
		post.Title = *pu.Title
	}
	if pu.Content != nil {
		post.Content = *pu.Content
	}
	if pu.PostType != nil {
		post.PostType = *pu.PostType
	}
	if pu.MediaURL != nil {
		post.MediaURL = RewriteSharingURL(*pu.MediaURL)
	}
	if pu.IsReels != nil {
		post.IsReels = *pu.IsReels
	}
	if pu.Platforms != nil {
		post.Platforms = *pu.Platforms
	}
	if pu.ScheduledDate != nil {
		if *pu.ScheduledDate == "" {
			post.ScheduledDate = sql.NullTime{}
		} else {
			scheduledDate, err := time.Parse(scheduledDateLayout, *pu.ScheduledDate)
			if err != nil {
				return &ValidationError{Reason: "invalid scheduled date format"}
			}
			post.ScheduledDate = sql.NullTime{Time: scheduledDate, Valid: true}
		}
	}
	if pu.Status != nil {
		post.Status = *pu.Status
	}

	if err := validatePost(post, time.Now()); err != nil {
		slog.Info(err.Error())
		return err
	}

	return s.pr.Update(ctx, post)
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	if userID == 0 {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return err
	}
	if postID == 0 {
		err := errors.New("post id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post")
	}

	return nil
}
