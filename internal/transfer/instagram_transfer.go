package transfer

// DTOs for the Facebook/Instagram Graph API.

type FacebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type FacebookPage struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	AccessToken              string `json:"access_token"`
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

type FacebookPagesResponse struct {
	Data []FacebookPage `json:"data"`
}

type InstagramProfile struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

type ContainerCreateResponse struct {
	ID string `json:"id"`
}

// ContainerStatusResponse carries the status_code field polled during video
// processing. Known values: IN_PROGRESS, FINISHED, ERROR.
type ContainerStatusResponse struct {
	StatusCode string `json:"status_code"`
}

type GraphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
		ErrorUserMsg string `json:"error_user_msg"`
		FbtraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// BestMessage picks the most useful human-readable message from a Graph error
// payload, falling back to the supplied default.
func (e *GraphErrorResponse) BestMessage(fallback string) string {
	if e.Error.ErrorUserMsg != "" {
		return e.Error.ErrorUserMsg
	}
	if e.Error.Message != "" {
		return e.Error.Message
	}
	return fallback
}

// ConnectedAccount is returned to the OAuth popup after a successful handshake.
type ConnectedAccount struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Verified  bool   `json:"verified"`
}

// TokenValidation is the result of an on-demand access token check.
type TokenValidation struct {
	Valid      bool   `json:"valid"`
	FacebookID string `json:"facebook_id,omitempty"`
	PageName   string `json:"page_name,omitempty"`
	IgID       string `json:"ig_id,omitempty"`
	Username   string `json:"username,omitempty"`
}
