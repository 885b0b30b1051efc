package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"postpilot/internal/models"
)

type SocialAccountRepository interface {
	Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error)
	GetActive(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	Deactivate(ctx context.Context, id int64) error
	DeactivateExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

// Upsert writes the credential for (user_id, platform) as a single atomic
// statement, keeping at most one row per pair. Reconnecting reactivates a
// previously disconnected account.
func (r *socialAccountRepository) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	query := `
		INSERT INTO social_accounts(
			user_id,
			platform,
			account_id,
			username,
			display_name,
			profile_image_url,
			access_token,
			token_expiry,
			is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (user_id, platform) DO UPDATE
		SET account_id = EXCLUDED.account_id,
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			profile_image_url = EXCLUDED.profile_image_url,
			access_token = EXCLUDED.access_token,
			token_expiry = EXCLUDED.token_expiry,
			is_active = TRUE,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		sa.UserID,
		sa.Platform,
		sa.AccountID,
		sa.Username,
		sa.DisplayName,
		sa.ProfileImage,
		sa.AccessToken,
		sa.TokenExpiry,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

// GetActive returns the active credential for (userID, platform), or nil when
// the user has no usable connection there.
func (r *socialAccountRepository) GetActive(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error) {
	query := `
		SELECT id, user_id, platform, account_id, username, display_name,
			profile_image_url, access_token, token_expiry, is_active, created_at, updated_at
		FROM social_accounts
		WHERE user_id = $1 AND platform = $2 AND is_active = TRUE
	`
	row := r.db.QueryRowContext(ctx, query, userID, platform)

	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.Username,
		&sa.DisplayName, &sa.ProfileImage, &sa.AccessToken, &sa.TokenExpiry,
		&sa.IsActive, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &sa, nil
}

func (r *socialAccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	query := `
		SELECT id, user_id, platform, account_id, username, display_name,
			profile_image_url, token_expiry, is_active
		FROM social_accounts WHERE user_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		var sa models.SocialAccount
		err := rows.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.Username,
			&sa.DisplayName, &sa.ProfileImage, &sa.TokenExpiry, &sa.IsActive)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &sa)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *socialAccountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := "SELECT 1 FROM social_accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// Deactivate marks the credential inactive. Rows are kept for audit, never
// deleted on disconnect or expiry.
func (r *socialAccountRepository) Deactivate(ctx context.Context, id int64) error {
	query := `
		UPDATE social_accounts
		SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// DeactivateExpired flips every active credential whose token expired before
// cutoff, returning how many rows changed.
func (r *socialAccountRepository) DeactivateExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE social_accounts
		SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE is_active = TRUE AND token_expiry < $1
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return affected, nil
}
