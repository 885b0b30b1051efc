package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"postpilot/internal/models"
)

type UsageRepository interface {
	SumForPeriod(ctx context.Context, userID int64, action string, from, to time.Time) (int, error)
	Increment(ctx context.Context, userID int64, action string, day time.Time, count int) error
}

type usageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) UsageRepository {
	return &usageRepository{db: db}
}

// usageColumns whitelists the counter columns an action may touch. Actions
// are caller-supplied strings and must never reach the SQL text directly.
var usageColumns = map[string]string{
	models.UsageActionImages: "images_generated",
	models.UsageActionPosts:  "posts_published",
	models.UsageActionChat:   "chat_messages",
}

func usageColumn(action string) (string, error) {
	col, ok := usageColumns[action]
	if !ok {
		return "", fmt.Errorf("unknown usage action %q", action)
	}
	return col, nil
}

func (r *usageRepository) SumForPeriod(ctx context.Context, userID int64, action string, from, to time.Time) (int, error) {
	col, err := usageColumn(action)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(%s), 0) FROM usage_stats
		WHERE user_id = $1 AND date >= $2 AND date < $3
	`, col)

	var used int
	if err := r.db.QueryRowContext(ctx, query, userID, from, to).Scan(&used); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return used, nil
}

// Increment bumps the day's counter as one atomic upsert, so two concurrent
// publishes never lose an increment.
func (r *usageRepository) Increment(ctx context.Context, userID int64, action string, day time.Time, count int) error {
	col, err := usageColumn(action)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_stats (user_id, date, %s)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, date) DO UPDATE
		SET %s = usage_stats.%s + EXCLUDED.%s
	`, col, col, col, col)

	if _, err := r.db.ExecContext(ctx, query, userID, day, count); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
