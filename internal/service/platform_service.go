package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	config "postpilot/configs"
	"postpilot/internal/models"
	"postpilot/internal/repository"
	"postpilot/pkg/utils"
)

type PlatformService interface {
	ConnectURL(ctx context.Context, platform string, userID int64) (string, error)
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Disconnect(ctx context.Context, userID, accountID int64) error
}

type platformService struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
	ig  InstagramService
}

func NewPlatformService(cfg config.Config, sa repository.SocialAccountRepository, ig InstagramService) PlatformService {
	return &platformService{
		cfg: cfg,
		sa:  sa,
		ig:  ig,
	}
}

// ConnectURL signs a fresh state token for the user and returns the
// platform's authorization URL to redirect the browser to.
func (s *platformService) ConnectURL(ctx context.Context, platform string, userID int64) (string, error) {
	if userID == 0 {
		return "", errors.New("UserID is not valid")
	}

	switch platform {
	case models.PlatformInstagram:
		claims, err := utils.NewStateClaims(userID)
		if err != nil {
			return "", err
		}
		state, err := utils.SignState(claims, []byte(s.cfg.SecretKey))
		if err != nil {
			return "", err
		}
		return s.ig.AuthURL(state), nil
	default:
		return "", fmt.Errorf("platform %q is not available for connection", platform)
	}
}

func (s *platformService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	if userID == 0 {
		err := errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting social accounts")
	}

	return accounts, nil
}

// Disconnect deactivates the credential. The row is kept for audit; a later
// reconnect reactivates it through the upsert path.
func (s *platformService) Disconnect(ctx context.Context, userID, accountID int64) error {
	if userID == 0 {
		err := errors.New("UserID is not valid")
		slog.Info(err.Error())
		return err
	}
	if accountID == 0 {
		err := errors.New("AccountID is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("social account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err := s.sa.Deactivate(ctx, accountID); err != nil {
		return fmt.Errorf("error disconnecting account")
	}

	return nil
}
