package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"postpilot/internal/models"
)

type fakeUsageRepo struct {
	used      int
	sumErr    error
	increment struct {
		userID int64
		action string
		day    time.Time
		count  int
		calls  int
	}
}

func (f *fakeUsageRepo) SumForPeriod(ctx context.Context, userID int64, action string, from, to time.Time) (int, error) {
	return f.used, f.sumErr
}

func (f *fakeUsageRepo) Increment(ctx context.Context, userID int64, action string, day time.Time, count int) error {
	f.increment.userID = userID
	f.increment.action = action
	f.increment.day = day
	f.increment.count = count
	f.increment.calls++
	return nil
}

func testUsage(repo *fakeUsageRepo, planID string) *usageService {
	return &usageService{
		usage: repo,
		plans: StaticPlanProvider{PlanID: planID},
		now:   func() time.Time { return time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC) },
	}
}

func TestCheckLimitUnderQuota(t *testing.T) {
	s := testUsage(&fakeUsageRepo{used: 4}, "free")

	status, err := s.CheckLimit(context.Background(), 7, models.UsageActionPosts)
	assert.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 4, status.Used)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 1, status.Remaining)
}

func TestCheckLimitAtQuotaBlocks(t *testing.T) {
	// Reaching the limit exactly blocks the next attempt.
	s := testUsage(&fakeUsageRepo{used: 5}, "free")

	status, err := s.CheckLimit(context.Background(), 7, models.UsageActionPosts)
	assert.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 0, status.Remaining)
}

func TestCheckLimitUnlimitedPlan(t *testing.T) {
	s := testUsage(&fakeUsageRepo{used: 100000}, "enterprise")

	status, err := s.CheckLimit(context.Background(), 7, models.UsageActionPosts)
	assert.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, -1, status.Limit)
}

func TestCheckLimitUnknownAction(t *testing.T) {
	s := testUsage(&fakeUsageRepo{}, "free")

	status, err := s.CheckLimit(context.Background(), 7, "videos_rendered")
	assert.NoError(t, err)
	assert.False(t, status.Allowed)
}

func TestCheckLimitDemoUser(t *testing.T) {
	s := testUsage(&fakeUsageRepo{used: 100000}, "free")

	status, err := s.CheckLimit(context.Background(), DemoUserID, models.UsageActionPosts)
	assert.NoError(t, err)
	assert.True(t, status.Allowed)
}

func TestTrackUsageRecordsDay(t *testing.T) {
	repo := &fakeUsageRepo{}
	s := testUsage(repo, "free")

	err := s.TrackUsage(context.Background(), 7, models.UsageActionPosts, 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, repo.increment.calls)
	assert.Equal(t, int64(7), repo.increment.userID)
	assert.Equal(t, models.UsageActionPosts, repo.increment.action)
	assert.Equal(t, 1, repo.increment.count)
	assert.Equal(t, 0, repo.increment.day.Hour())
}

func TestTrackUsageDayStaysInsideLocalMonthWindow(t *testing.T) {
	// Just after midnight on the 1st in a non-UTC zone: the recorded day
	// must fall inside the window CheckLimit sums, not the previous month.
	loc := time.FixedZone("UTC+10", 10*60*60)
	repo := &fakeUsageRepo{}
	s := &usageService{
		usage: repo,
		plans: StaticPlanProvider{PlanID: "free"},
		now:   func() time.Time { return time.Date(2025, time.July, 1, 0, 30, 0, 0, loc) },
	}

	err := s.TrackUsage(context.Background(), 7, models.UsageActionPosts, 1)
	assert.NoError(t, err)

	day := repo.increment.day
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, loc), day)

	from, to := monthWindow(s.now())
	assert.False(t, day.Before(from))
	assert.True(t, day.Before(to))
}

func TestTrackUsageDemoUserSkipsStore(t *testing.T) {
	repo := &fakeUsageRepo{}
	s := testUsage(repo, "free")

	err := s.TrackUsage(context.Background(), DemoUserID, models.UsageActionPosts, 1)
	assert.NoError(t, err)
	assert.Equal(t, 0, repo.increment.calls)
}
