package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"postpilot/internal/models"
	"postpilot/internal/service"
	"postpilot/internal/transfer"
)

type fakePostRepo struct {
	mu      sync.Mutex
	post    *models.Post
	status  string
	outcome map[string]models.PublishResult
}

func (f *fakePostRepo) Create(ctx context.Context, post *models.Post) (int64, error) { return 0, nil }

func (f *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return f.post, nil
}

func (f *fakePostRepo) ListByUserID(ctx context.Context, userID int64, status string) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) Claim(ctx context.Context, postID int64) (bool, error) {
	return f.ClaimFrom(ctx, postID, []string{models.PostStatusScheduled})
}

func (f *fakePostRepo) ClaimFrom(ctx context.Context, postID int64, fromStatuses []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.post.Status
	if f.status != "" {
		status = f.status
	}
	for _, s := range fromStatuses {
		if s == status {
			f.status = models.PostStatusPublishing
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePostRepo) SetStatus(ctx context.Context, postID int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	return nil
}

func (f *fakePostRepo) Update(ctx context.Context, post *models.Post) error { return nil }

func (f *fakePostRepo) SetOutcome(ctx context.Context, postID int64, status string, results map[string]models.PublishResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.outcome = results
	return nil
}

func (f *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return true, nil
}

func (f *fakePostRepo) Remove(ctx context.Context, id int64) error { return nil }

type fakeAccountRepo struct {
	accounts map[string]*models.SocialAccount
}

func (f *fakeAccountRepo) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	return 0, nil
}

func (f *fakeAccountRepo) GetActive(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error) {
	return f.accounts[platform], nil
}

func (f *fakeAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return false, nil
}

func (f *fakeAccountRepo) Deactivate(ctx context.Context, id int64) error { return nil }

func (f *fakeAccountRepo) DeactivateExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeUsage struct {
	mu       sync.Mutex
	allowed  bool
	checkErr error
	tracked  int
}

func (f *fakeUsage) CheckLimit(ctx context.Context, userID int64, action string) (*transfer.LimitStatus, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return &transfer.LimitStatus{Allowed: f.allowed, Used: 5, Limit: 5}, nil
}

func (f *fakeUsage) TrackUsage(ctx context.Context, userID int64, action string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked += count
	return nil
}

type fakeResolver struct {
	url      string
	degraded bool
	err      error
}

func (f *fakeResolver) Resolve(ctx context.Context, rawURL, mediaType string) (*service.ResolvedMedia, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.ResolvedMedia{URL: f.url, Degraded: f.degraded}, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	results map[string]models.PublishResult
	calls   []string
}

func (f *fakePublisher) Publish(ctx context.Context, account *models.SocialAccount, post *models.Post, mediaURL string) models.PublishResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, account.Platform)
	return f.results[account.Platform]
}

func testPost(platforms ...string) *models.Post {
	return &models.Post{
		ID:        1,
		UserID:    7,
		Content:   "hello",
		PostType:  models.PostTypeImage,
		MediaURL:  "https://example.com/a.jpg",
		Status:    models.PostStatusPublishing,
		Platforms: platforms,
	}
}

func instagramAccount() *models.SocialAccount {
	return &models.SocialAccount{ID: 1, UserID: 7, Platform: models.PlatformInstagram, AccountID: "ig-1"}
}

func TestPublishPostSuccess(t *testing.T) {
	pr := &fakePostRepo{post: testPost(models.PlatformInstagram)}
	usage := &fakeUsage{allowed: true}
	publisher := &fakePublisher{results: map[string]models.PublishResult{
		models.PlatformInstagram: {Success: true, PostID: "ext-1"},
	}}

	q := NewQueue(pr,
		&fakeAccountRepo{accounts: map[string]*models.SocialAccount{models.PlatformInstagram: instagramAccount()}},
		usage, &fakeResolver{url: "https://example.com/a.jpg"}, publisher)

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, pr.status)
	assert.True(t, pr.outcome[models.PlatformInstagram].Success)
	assert.Equal(t, 1, usage.tracked)
}

func TestPublishPostAccountNotConnected(t *testing.T) {
	pr := &fakePostRepo{post: testPost(models.PlatformInstagram)}
	publisher := &fakePublisher{results: map[string]models.PublishResult{}}

	q := NewQueue(pr, &fakeAccountRepo{accounts: map[string]*models.SocialAccount{}},
		&fakeUsage{allowed: true}, &fakeResolver{url: "u"}, publisher)

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)

	// No external call is made; the failure is synthesized locally.
	assert.Empty(t, publisher.calls)
	assert.Equal(t, models.PostStatusFailed, pr.status)
	result := pr.outcome[models.PlatformInstagram]
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not connected")
}

func TestPublishPostQuotaBlocked(t *testing.T) {
	pr := &fakePostRepo{post: testPost(models.PlatformInstagram, models.PlatformTwitter)}
	publisher := &fakePublisher{}
	usage := &fakeUsage{allowed: false}

	q := NewQueue(pr, &fakeAccountRepo{}, usage, &fakeResolver{url: "u"}, publisher)

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)

	// Every platform records the same quota failure without any external call.
	assert.Empty(t, publisher.calls)
	assert.Equal(t, models.PostStatusFailed, pr.status)
	assert.Len(t, pr.outcome, 2)
	for _, result := range pr.outcome {
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "limit reached")
	}
	assert.Equal(t, 0, usage.tracked)
}

func TestPublishPostMediaResolutionFails(t *testing.T) {
	pr := &fakePostRepo{post: testPost(models.PlatformInstagram)}
	publisher := &fakePublisher{}

	q := NewQueue(pr, &fakeAccountRepo{}, &fakeUsage{allowed: true},
		&fakeResolver{err: errors.New("media URL not accessible")}, publisher)

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)
	assert.Empty(t, publisher.calls)
	assert.Equal(t, models.PostStatusFailed, pr.status)
	assert.Contains(t, pr.outcome[models.PlatformInstagram].Error, "not accessible")
}

func TestPublishPostPartialSuccessIsPublished(t *testing.T) {
	pr := &fakePostRepo{post: testPost(models.PlatformInstagram, models.PlatformTwitter)}
	usage := &fakeUsage{allowed: true}
	publisher := &fakePublisher{results: map[string]models.PublishResult{
		models.PlatformInstagram: {Success: true, PostID: "ext-1"},
		models.PlatformTwitter:   {Success: false, Error: "Coming Soon"},
	}}

	q := NewQueue(pr, &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		models.PlatformInstagram: instagramAccount(),
		models.PlatformTwitter:   {ID: 2, UserID: 7, Platform: models.PlatformTwitter},
	}}, usage, &fakeResolver{url: "u"}, publisher)

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)

	// One success is enough to count the post as published.
	assert.Equal(t, models.PostStatusPublished, pr.status)
	assert.False(t, pr.outcome[models.PlatformTwitter].Success)
	// Only the successful platform consumes quota.
	assert.Equal(t, 1, usage.tracked)
}

func TestPublishPostAllFailed(t *testing.T) {
	pr := &fakePostRepo{post: testPost(models.PlatformInstagram)}
	publisher := &fakePublisher{results: map[string]models.PublishResult{
		models.PlatformInstagram: {Success: false, Error: "Invalid image URL"},
	}}

	q := NewQueue(pr, &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		models.PlatformInstagram: instagramAccount(),
	}}, &fakeUsage{allowed: true}, &fakeResolver{url: "u"}, publisher)

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, pr.status)
}

func TestPublishNowConcurrentSingleWinner(t *testing.T) {
	post := testPost(models.PlatformInstagram)
	post.Status = models.PostStatusDraft
	pr := &fakePostRepo{post: post}
	publisher := &fakePublisher{results: map[string]models.PublishResult{
		models.PlatformInstagram: {Success: true, PostID: "ext-1"},
	}}

	q := NewQueue(pr,
		&fakeAccountRepo{accounts: map[string]*models.SocialAccount{models.PlatformInstagram: instagramAccount()}},
		&fakeUsage{allowed: true}, &fakeResolver{url: "u"}, publisher)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = q.PublishNow(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	// The claim admits exactly one caller to the external attempt.
	assert.Len(t, publisher.calls, 1)
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrPublishInProgress)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestPublishNowRejectsPublishedPost(t *testing.T) {
	post := testPost(models.PlatformInstagram)
	post.Status = models.PostStatusPublished
	pr := &fakePostRepo{post: post}
	publisher := &fakePublisher{}

	q := NewQueue(pr, &fakeAccountRepo{}, &fakeUsage{allowed: true}, &fakeResolver{url: "u"}, publisher)

	err := q.PublishNow(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPublishInProgress)
	assert.Empty(t, publisher.calls)
}

func TestPublishPostQuotaCheckFailureRecordsOutcome(t *testing.T) {
	// A gate read failure must not leave a claimed post stuck in publishing
	// with an empty results map.
	pr := &fakePostRepo{post: testPost(models.PlatformInstagram)}
	publisher := &fakePublisher{}

	q := NewQueue(pr, &fakeAccountRepo{},
		&fakeUsage{checkErr: errors.New("connection refused")},
		&fakeResolver{url: "u"}, publisher)

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)
	assert.Empty(t, publisher.calls)
	assert.Equal(t, models.PostStatusFailed, pr.status)
	result := pr.outcome[models.PlatformInstagram]
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "could not be verified")
}

func TestPublishPostRecordsDegradedMedia(t *testing.T) {
	pr := &fakePostRepo{post: testPost(models.PlatformInstagram)}
	publisher := &fakePublisher{results: map[string]models.PublishResult{
		models.PlatformInstagram: {Success: true, PostID: "ext-1"},
	}}

	q := NewQueue(pr,
		&fakeAccountRepo{accounts: map[string]*models.SocialAccount{models.PlatformInstagram: instagramAccount()}},
		&fakeUsage{allowed: true},
		&fakeResolver{url: "https://picsum.photos/1080/1080", degraded: true},
		publisher)

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)

	result := pr.outcome[models.PlatformInstagram]
	assert.True(t, result.Success)
	assert.True(t, result.Degraded)
}

func TestPublishPostTextSkipsMediaResolution(t *testing.T) {
	post := testPost(models.PlatformInstagram)
	post.PostType = models.PostTypeText
	post.MediaURL = ""
	pr := &fakePostRepo{post: post}

	// A resolver that always fails proves it is never consulted for text.
	q := NewQueue(pr, &fakeAccountRepo{accounts: map[string]*models.SocialAccount{
		models.PlatformInstagram: instagramAccount(),
	}}, &fakeUsage{allowed: true},
		&fakeResolver{err: errors.New("should not be called")},
		&fakePublisher{results: map[string]models.PublishResult{
			models.PlatformInstagram: {Success: true},
		}})

	err := q.PublishPost(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, pr.status)
}
