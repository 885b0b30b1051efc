package service

import (
	"context"
	"log/slog"
	"time"

	"postpilot/internal/models"
	"postpilot/internal/repository"
	"postpilot/internal/transfer"
)

// DemoUserID marks the unauthenticated demo context. It is the only caller
// for whom a quota read failure degrades to "allowed"; real accounts must
// never silently bypass their limits.
const DemoUserID int64 = 0

// Plan limits are per calendar month, keyed by usage action. -1 is unlimited.
type Plan struct {
	ID     string
	Name   string
	Limits map[string]int
}

var subscriptionPlans = map[string]Plan{
	"free": {
		ID:   "free",
		Name: "Free",
		Limits: map[string]int{
			models.UsageActionImages: 10,
			models.UsageActionPosts:  5,
			models.UsageActionChat:   100,
		},
	},
	"starter": {
		ID:   "starter",
		Name: "Starter",
		Limits: map[string]int{
			models.UsageActionImages: 100,
			models.UsageActionPosts:  50,
			models.UsageActionChat:   1000,
		},
	},
	"pro": {
		ID:   "pro",
		Name: "Pro",
		Limits: map[string]int{
			models.UsageActionImages: 500,
			models.UsageActionPosts:  200,
			models.UsageActionChat:   5000,
		},
	},
	"enterprise": {
		ID:   "enterprise",
		Name: "Enterprise",
		Limits: map[string]int{
			models.UsageActionImages: -1,
			models.UsageActionPosts:  -1,
			models.UsageActionChat:   -1,
		},
	},
}

// PlanProvider answers which plan a user is on. Billing itself is an external
// collaborator; this is the only surface the quota gate consults.
type PlanProvider interface {
	PlanFor(ctx context.Context, userID int64) (Plan, error)
}

// StaticPlanProvider puts every user on one fixed plan. Useful until a real
// billing integration is wired in.
type StaticPlanProvider struct {
	PlanID string
}

func (p StaticPlanProvider) PlanFor(ctx context.Context, userID int64) (Plan, error) {
	if plan, ok := subscriptionPlans[p.PlanID]; ok {
		return plan, nil
	}
	return subscriptionPlans["free"], nil
}

type UsageService interface {
	CheckLimit(ctx context.Context, userID int64, action string) (*transfer.LimitStatus, error)
	TrackUsage(ctx context.Context, userID int64, action string, count int) error
}

type usageService struct {
	usage repository.UsageRepository
	plans PlanProvider
	now   func() time.Time
}

func NewUsageService(usage repository.UsageRepository, plans PlanProvider) UsageService {
	return &usageService{
		usage: usage,
		plans: plans,
		now:   time.Now,
	}
}

// CheckLimit is consulted before a publish attempt begins. Reaching the limit
// exactly blocks the next attempt (allowed iff used < limit).
func (s *usageService) CheckLimit(ctx context.Context, userID int64, action string) (*transfer.LimitStatus, error) {
	if userID == DemoUserID {
		return &transfer.LimitStatus{Allowed: true, Used: 0, Limit: 100, Remaining: 100}, nil
	}

	plan, err := s.plans.PlanFor(ctx, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	limit, ok := plan.Limits[action]
	if !ok {
		return &transfer.LimitStatus{Allowed: false}, nil
	}
	if limit == -1 {
		return &transfer.LimitStatus{Allowed: true, Limit: -1, Remaining: -1}, nil
	}

	from, to := monthWindow(s.now())
	used, err := s.usage.SumForPeriod(ctx, userID, action, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return &transfer.LimitStatus{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
	}, nil
}

// TrackUsage records consumption. Called only after a successful publish;
// failed attempts never consume quota.
func (s *usageService) TrackUsage(ctx context.Context, userID int64, action string, count int) error {
	if userID == DemoUserID {
		slog.Info("demo usage tracked", "action", action, "count", count)
		return nil
	}

	// The day must be derived in the same location monthWindow uses, or an
	// increment near a month boundary can land outside the summed window.
	n := s.now()
	day := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
	return s.usage.Increment(ctx, userID, action, day, count)
}

func monthWindow(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 1, 0)
}
