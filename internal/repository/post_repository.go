package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"postpilot/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByUserID(ctx context.Context, userID int64, status string) ([]*models.Post, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Post, error)
	Claim(ctx context.Context, postID int64) (bool, error)
	ClaimFrom(ctx context.Context, postID int64, fromStatuses []string) (bool, error)
	SetStatus(ctx context.Context, postID int64, status string) error
	Update(ctx context.Context, post *models.Post) error
	SetOutcome(ctx context.Context, postID int64, status string, results map[string]models.PublishResult) error
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, title, content, post_type, media_url, is_reels,
	scheduled_date, status, platforms, publish_results, created_at, updated_at`

func scanPost(row interface{ Scan(...interface{}) error }) (*models.Post, error) {
	var post models.Post
	var results []byte
	err := row.Scan(&post.ID, &post.UserID, &post.Title, &post.Content, &post.PostType,
		&post.MediaURL, &post.IsReels, &post.ScheduledDate, &post.Status, pq.Array(&post.Platforms),
		&results, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &post.PublishResults); err != nil {
			return nil, err
		}
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, title, content, post_type, media_url, is_reels, scheduled_date, status, platforms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		post.UserID, post.Title, post.Content, post.PostType, post.MediaURL,
		post.IsReels, post.ScheduledDate, post.Status, pq.Array(post.Platforms),
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByUserID(ctx context.Context, userID int64, status string) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1`
	args := []interface{}{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// ListDue returns scheduled posts whose scheduled_date has passed. Selection
// is advisory only; a post must still be claimed before work starts on it.
func (r *postRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND scheduled_date <= $2
		ORDER BY scheduled_date ASC`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// Claim transitions a scheduled post into publishing with one conditional
// UPDATE. Exactly one of any number of concurrent sweeps observes a row
// change; the rest see the post as already taken and must skip it.
func (r *postRepository) Claim(ctx context.Context, postID int64) (bool, error) {
	return r.ClaimFrom(ctx, postID, []string{models.PostStatusScheduled})
}

// ClaimFrom is the general form of Claim: the post moves into publishing only
// if its current status is one of fromStatuses. The interactive publish path
// claims from draft, scheduled and failed through this.
func (r *postRepository) ClaimFrom(ctx context.Context, postID int64, fromStatuses []string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = ANY($3)
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, postID, pq.Array(fromStatuses))
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) SetStatus(ctx context.Context, postID int64, status string) error {
	query := `
		UPDATE posts
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, status, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	query := `
		UPDATE posts
		SET title = $1,
			content = $2,
			post_type = $3,
			media_url = $4,
			is_reels = $5,
			scheduled_date = $6,
			status = $7,
			platforms = $8,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $9
	`
	_, err := r.db.ExecContext(ctx, query,
		post.Title, post.Content, post.PostType, post.MediaURL, post.IsReels,
		post.ScheduledDate, post.Status, pq.Array(post.Platforms), post.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SetOutcome persists the reduced status together with the full per-platform
// results map. This write is what stops the next sweep from re-selecting the post.
func (r *postRepository) SetOutcome(ctx context.Context, postID int64, status string, results map[string]models.PublishResult) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		UPDATE posts
		SET status = $1, publish_results = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`
	_, err = r.db.ExecContext(ctx, query, status, encoded, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
