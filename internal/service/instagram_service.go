package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	config "postpilot/configs"
	"postpilot/internal/models"
	"postpilot/internal/repository"
	"postpilot/internal/transfer"
	"postpilot/pkg/utils"
)

// defaultTokenLifetime is assumed when the long-lived token exchange response
// omits expires_in. Facebook long-lived tokens last about 60 days.
const defaultTokenLifetime = 60 * 24 * time.Hour

const instagramOAuthScope = "instagram_basic,instagram_content_publish,pages_show_list,pages_read_engagement"

type InstagramService interface {
	AuthURL(state string) string
	ConnectCallback(ctx context.Context, code, state string) ([]transfer.ConnectedAccount, error)
	ValidateAccessToken(ctx context.Context, accessToken string) (*transfer.TokenValidation, error)
	SaveAccessToken(ctx context.Context, userID int64, accessToken string) (*transfer.TokenValidation, error)

	PlatformClient
}

type instagramService struct {
	cfg       config.Config
	sa        repository.SocialAccountRepository
	oauth     *oauth2.Config
	http      *http.Client
	graphBase string
}

func NewInstagramService(cfg config.Config, sa repository.SocialAccountRepository) InstagramService {
	return &instagramService{
		cfg: cfg,
		sa:  sa,
		oauth: &oauth2.Config{
			ClientID:     cfg.FacebookAppID,
			ClientSecret: cfg.FacebookAppSecret,
			RedirectURL:  cfg.InstagramRedirectURI,
			Endpoint:     facebook.Endpoint,
		},
		http:      &http.Client{Timeout: 30 * time.Second},
		graphBase: cfg.GraphBaseURL(),
	}
}

func (ig *instagramService) AuthURL(state string) string {
	return ig.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("scope", instagramOAuthScope))
}

// ConnectCallback completes the redirect handshake: verify state, exchange the
// code for a long-lived token, enumerate pages with linked business accounts
// and upsert a credential per account found. Any external failure before the
// first upsert aborts with no persisted change.
func (ig *instagramService) ConnectCallback(ctx context.Context, code, state string) ([]transfer.ConnectedAccount, error) {
	claims, err := utils.VerifyState(state, []byte(ig.cfg.SecretKey))
	if err != nil {
		slog.Info("state verification failed")
		return nil, ErrInvalidState
	}

	if code == "" {
		return nil, &AuthError{Reason: "missing authorization code"}
	}

	shortToken, err := ig.oauth.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	longToken, expiry, err := ig.exchangeLongLivedToken(ctx, shortToken.AccessToken)
	if err != nil {
		return nil, err
	}

	pages, err := ig.listPages(ctx, longToken)
	if err != nil {
		return nil, err
	}

	var connected []transfer.ConnectedAccount
	for _, page := range pages {
		if page.InstagramBusinessAccount == nil || page.InstagramBusinessAccount.ID == "" {
			continue
		}
		igID := page.InstagramBusinessAccount.ID

		profile, err := ig.fetchProfile(ctx, igID, page.AccessToken)
		if err != nil {
			return nil, err
		}

		// The page token is what operates on the linked IG account.
		encryptedToken, err := utils.Encrypt([]byte(page.AccessToken), []byte(ig.cfg.SecretKey))
		if err != nil {
			return nil, err
		}

		account := &models.SocialAccount{
			UserID:       claims.UserID,
			Platform:     models.PlatformInstagram,
			AccountID:    igID,
			Username:     profile.Username,
			DisplayName:  page.Name,
			ProfileImage: profile.ProfilePictureURL,
			AccessToken:  encryptedToken,
			TokenExpiry:  expiry,
		}

		if _, err := ig.sa.Upsert(ctx, account); err != nil {
			return nil, err
		}

		// Liveness check with the stored token. Read-only verification issues
		// must not roll back a successful write, so failure is a warning only.
		if _, err := ig.fetchProfile(ctx, igID, page.AccessToken); err != nil {
			slog.Warn("post-connect verification failed", "account_id", igID, "error", err.Error())
		}

		connected = append(connected, transfer.ConnectedAccount{
			AccountID: igID,
			Username:  profile.Username,
			Verified:  true,
		})
	}

	if len(connected) == 0 {
		return nil, ErrNoBusinessAccount
	}

	return connected, nil
}

func (ig *instagramService) exchangeLongLivedToken(ctx context.Context, shortToken string) (string, time.Time, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", ig.cfg.FacebookAppID)
	params.Set("client_secret", ig.cfg.FacebookAppSecret)
	params.Set("fb_exchange_token", shortToken)

	var result transfer.FacebookTokenResponse
	if err := ig.graphGET(ctx, ig.graphBase+"/oauth/access_token", params, &result); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to get long-lived token: %w", err)
	}

	lifetime := defaultTokenLifetime
	if result.ExpiresIn > 0 {
		lifetime = time.Duration(result.ExpiresIn) * time.Second
	}
	return result.AccessToken, time.Now().Add(lifetime), nil
}

func (ig *instagramService) listPages(ctx context.Context, accessToken string) ([]transfer.FacebookPage, error) {
	params := url.Values{}
	params.Set("fields", "id,name,access_token,instagram_business_account")
	params.Set("access_token", accessToken)

	var result transfer.FacebookPagesResponse
	if err := ig.graphGET(ctx, ig.graphBase+"/me/accounts", params, &result); err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	return result.Data, nil
}

func (ig *instagramService) fetchProfile(ctx context.Context, igID, accessToken string) (*transfer.InstagramProfile, error) {
	params := url.Values{}
	params.Set("fields", "id,username,profile_picture_url")
	params.Set("access_token", accessToken)

	var profile transfer.InstagramProfile
	if err := ig.graphGET(ctx, ig.graphBase+"/"+igID, params, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ValidateAccessToken checks a user-supplied page token against the Graph API
// without persisting anything.
func (ig *instagramService) ValidateAccessToken(ctx context.Context, accessToken string) (*transfer.TokenValidation, error) {
	params := url.Values{}
	params.Set("fields", "id,name")
	params.Set("access_token", accessToken)

	var me struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := ig.graphGET(ctx, ig.graphBase+"/me", params, &me); err != nil {
		return nil, &AuthError{Reason: "access token rejected: " + err.Error()}
	}

	validation := &transfer.TokenValidation{
		Valid:      true,
		FacebookID: me.ID,
		PageName:   me.Name,
	}

	igID, err := ig.resolveBusinessAccountID(ctx, accessToken)
	if err != nil {
		// Insufficient scope is possible here; the token itself is still valid.
		slog.Info(err.Error())
		return validation, nil
	}
	validation.IgID = igID

	if profile, err := ig.fetchProfile(ctx, igID, accessToken); err == nil {
		validation.Username = profile.Username
	}

	return validation, nil
}

// SaveAccessToken validates and stores a manually submitted token, assuming
// the standard 60-day long-lived expiry.
func (ig *instagramService) SaveAccessToken(ctx context.Context, userID int64, accessToken string) (*transfer.TokenValidation, error) {
	validation, err := ig.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	accountID := validation.IgID
	if accountID == "" {
		accountID = validation.FacebookID
	}
	username := validation.Username
	if username == "" {
		username = "Unknown"
	}

	encryptedToken, err := utils.Encrypt([]byte(accessToken), []byte(ig.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	account := &models.SocialAccount{
		UserID:      userID,
		Platform:    models.PlatformInstagram,
		AccountID:   accountID,
		Username:    username,
		DisplayName: validation.PageName,
		AccessToken: encryptedToken,
		TokenExpiry: time.Now().Add(defaultTokenLifetime),
	}
	if _, err := ig.sa.Upsert(ctx, account); err != nil {
		return nil, err
	}

	return validation, nil
}

func (ig *instagramService) resolveBusinessAccountID(ctx context.Context, accessToken string) (string, error) {
	pages, err := ig.listPages(ctx, accessToken)
	if err != nil {
		return "", err
	}
	for _, page := range pages {
		if page.InstagramBusinessAccount != nil && page.InstagramBusinessAccount.ID != "" {
			return page.InstagramBusinessAccount.ID, nil
		}
	}
	return "", &AuthError{Reason: "unable to resolve instagram business account from token"}
}

// CreateContainer starts a media upload on the platform and returns the
// container id. Failures carry the platform's own message where available.
func (ig *instagramService) CreateContainer(ctx context.Context, accountID, accessToken string, post *models.Post, mediaURL string) (string, error) {
	// Instagram has no text-only format; fail locally instead of sending a
	// container create with an empty image_url.
	if post.PostType == models.PostTypeText {
		return "", &ExternalError{Message: "unsupported post type for this platform"}
	}

	params := url.Values{}
	params.Set("caption", post.Content)
	params.Set("access_token", accessToken)

	switch post.PostType {
	case models.PostTypeVideo:
		if post.IsReels {
			params.Set("media_type", "REELS")
			params.Set("share_to_feed", "true")
		} else {
			params.Set("media_type", "VIDEO")
		}
		params.Set("video_url", mediaURL)
	default:
		params.Set("image_url", mediaURL)
	}

	var result transfer.ContainerCreateResponse
	if err := ig.graphPOST(ctx, ig.graphBase+"/"+accountID+"/media", params, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", &ExternalError{Message: "no container id returned from Instagram"}
	}

	return result.ID, nil
}

func (ig *instagramService) ContainerStatus(ctx context.Context, containerID, accessToken string) (string, error) {
	params := url.Values{}
	params.Set("fields", "status_code")
	params.Set("access_token", accessToken)

	var result transfer.ContainerStatusResponse
	if err := ig.graphGET(ctx, ig.graphBase+"/"+containerID, params, &result); err != nil {
		return "", err
	}
	return result.StatusCode, nil
}

func (ig *instagramService) PublishContainer(ctx context.Context, accountID, containerID, accessToken string) (string, error) {
	params := url.Values{}
	params.Set("creation_id", containerID)
	params.Set("access_token", accessToken)

	var result transfer.ContainerCreateResponse
	if err := ig.graphPOST(ctx, ig.graphBase+"/"+accountID+"/media_publish", params, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", &ExternalError{Message: "no post id returned from Instagram"}
	}

	return result.ID, nil
}

func (ig *instagramService) graphGET(ctx context.Context, rawURL string, params url.Values, target interface{}) error {
	return ig.graphCall(ctx, http.MethodGet, rawURL, params, target)
}

func (ig *instagramService) graphPOST(ctx context.Context, rawURL string, params url.Values, target interface{}) error {
	return ig.graphCall(ctx, http.MethodPost, rawURL, params, target)
}

func (ig *instagramService) graphCall(ctx context.Context, method, rawURL string, params url.Values, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := ig.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return &ExternalError{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ExternalError{Message: err.Error(), Transient: true}
	}

	if resp.StatusCode != http.StatusOK {
		var graphErr transfer.GraphErrorResponse
		_ = json.Unmarshal(body, &graphErr)
		msg := graphErr.BestMessage(fmt.Sprintf("unexpected status code from Instagram: %d", resp.StatusCode))
		return &ExternalError{Message: msg, Transient: graphErr.Error.IsTransient}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}
