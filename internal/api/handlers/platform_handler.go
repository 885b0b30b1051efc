package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	config "postpilot/configs"
	"postpilot/internal/service"
)

type PlatformHandler struct {
	ps  service.PlatformService
	ig  service.InstagramService
	cfg config.Config
}

func NewPlatformHandler(ps service.PlatformService, ig service.InstagramService, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		ps:  ps,
		ig:  ig,
		cfg: cfg,
	}
}

func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)

	authURL, err := h.ps.ConnectURL(c.Context(), c.Params("platform"), userID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Redirect(authURL)
}

// CallbackHandler completes the OAuth consent flow. It always responds with
// a small HTML page because the flow runs in a popup window: the page posts
// the result to the opener and closes itself.
func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	if errMsg := c.Query("error_description", c.Query("error")); errMsg != "" {
		return h.popupResponse(c, nil, errMsg)
	}
	if code == "" || state == "" {
		return h.popupResponse(c, nil, "Missing code or state parameter")
	}

	accounts, err := h.ig.ConnectCallback(c.Context(), code, state)
	if err != nil {
		slog.Info(err.Error())
		switch {
		case errors.Is(err, service.ErrInvalidState):
			return h.popupResponse(c, nil, "Authorization request expired, please try again")
		case errors.Is(err, service.ErrNoBusinessAccount):
			return h.popupResponse(c, nil, "No Instagram business account is linked to your Facebook pages")
		default:
			return h.popupResponse(c, nil, "Unable to connect account")
		}
	}

	return h.popupResponse(c, accounts, "")
}

func (h *PlatformHandler) popupResponse(c *fiber.Ctx, accounts any, errMsg string) error {
	message := fiber.Map{"type": "oauth-callback", "success": errMsg == ""}
	if errMsg != "" {
		message["error"] = errMsg
	} else {
		message["accounts"] = accounts
	}

	payload, err := json.Marshal(message)
	if err != nil {
		slog.Error(err.Error())
		payload = []byte(`{"type":"oauth-callback","success":false}`)
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body>
<script>
if (window.opener) {
	window.opener.postMessage(%s, %q);
	window.close();
} else {
	window.location.href = %q;
}
</script>
</body>
</html>`, payload, h.cfg.FrontendURL, h.cfg.FrontendURL+"/dashboard/accounts")

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(page)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.ps.List(c.Context(), userID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)

	err := h.ps.Disconnect(c.Context(), userID, int64(accountID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to disconnect social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

type accessTokenRequest struct {
	AccessToken string `json:"access_token"`
}

// ValidateAccessToken checks a user-supplied token against the Graph API
// without storing anything.
func (h *PlatformHandler) ValidateAccessToken(c *fiber.Ctx) error {
	var req accessTokenRequest
	if err := c.BodyParser(&req); err != nil || req.AccessToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "access_token is required",
		})
	}

	validation, err := h.ig.ValidateAccessToken(c.Context(), req.AccessToken)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Token validation failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(validation)
}

// SaveAccessToken validates and stores a token the user obtained on their
// own, bypassing the interactive consent flow.
func (h *PlatformHandler) SaveAccessToken(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req accessTokenRequest
	if err := c.BodyParser(&req); err != nil || req.AccessToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "access_token is required",
		})
	}

	validation, err := h.ig.SaveAccessToken(c.Context(), userID, req.AccessToken)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to save access token",
		})
	}

	return c.Status(fiber.StatusOK).JSON(validation)
}
