package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	config "postpilot/configs"
	"postpilot/internal/models"
)

func testGraphService(t *testing.T, handler http.HandlerFunc) (*instagramService, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &instagramService{
		cfg:       config.Config{FacebookAppID: "app", FacebookAppSecret: "secret", SecretKey: testSecret},
		http:      &http.Client{Timeout: 5 * time.Second},
		graphBase: srv.URL,
	}, srv
}

func TestCreateContainerImage(t *testing.T) {
	var got url.Values
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/17841400000000000/media", r.URL.Path)
		got = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]string{"id": "container-9"})
	})

	post := &models.Post{Content: "caption here", PostType: models.PostTypeImage}
	id, err := ig.CreateContainer(context.Background(), "17841400000000000", "token", post, "https://example.com/a.jpg")

	assert.NoError(t, err)
	assert.Equal(t, "container-9", id)
	assert.Equal(t, "caption here", got.Get("caption"))
	assert.Equal(t, "https://example.com/a.jpg", got.Get("image_url"))
	assert.Empty(t, got.Get("media_type"))
}

func TestCreateContainerReels(t *testing.T) {
	var got url.Values
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]string{"id": "container-9"})
	})

	post := &models.Post{Content: "c", PostType: models.PostTypeVideo, IsReels: true}
	_, err := ig.CreateContainer(context.Background(), "ig-1", "token", post, "https://example.com/a.mp4")

	assert.NoError(t, err)
	assert.Equal(t, "REELS", got.Get("media_type"))
	assert.Equal(t, "true", got.Get("share_to_feed"))
	assert.Equal(t, "https://example.com/a.mp4", got.Get("video_url"))
	assert.Empty(t, got.Get("image_url"))
}

func TestCreateContainerPlainVideo(t *testing.T) {
	var got url.Values
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]string{"id": "container-9"})
	})

	post := &models.Post{Content: "c", PostType: models.PostTypeVideo}
	_, err := ig.CreateContainer(context.Background(), "ig-1", "token", post, "https://example.com/a.mp4")

	assert.NoError(t, err)
	assert.Equal(t, "VIDEO", got.Get("media_type"))
	assert.Empty(t, got.Get("share_to_feed"))
}

func TestCreateContainerRejectsTextPost(t *testing.T) {
	called := false
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	post := &models.Post{Content: "just words", PostType: models.PostTypeText}
	_, err := ig.CreateContainer(context.Background(), "ig-1", "token", post, "")

	var ee *ExternalError
	assert.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Message, "unsupported post type")
	// Rejected locally, no request goes out.
	assert.False(t, called)
}

func TestCreateContainerGraphError(t *testing.T) {
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message":        "Invalid parameter",
				"error_user_msg": "The image is too small",
			},
		})
	})

	post := &models.Post{Content: "c", PostType: models.PostTypeImage}
	_, err := ig.CreateContainer(context.Background(), "ig-1", "token", post, "https://example.com/a.jpg")

	var ee *ExternalError
	assert.ErrorAs(t, err, &ee)
	// The user-facing message wins over the generic one.
	assert.Equal(t, "The image is too small", ee.Message)
	assert.False(t, ee.Transient)
}

func TestContainerStatus(t *testing.T) {
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/container-9", r.URL.Path)
		assert.Equal(t, "status_code", r.URL.Query().Get("fields"))
		json.NewEncoder(w).Encode(map[string]string{"status_code": "FINISHED"})
	})

	status, err := ig.ContainerStatus(context.Background(), "container-9", "token")
	assert.NoError(t, err)
	assert.Equal(t, containerStatusFinished, status)
}

func TestPublishContainer(t *testing.T) {
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ig-1/media_publish", r.URL.Path)
		assert.Equal(t, "container-9", r.URL.Query().Get("creation_id"))
		json.NewEncoder(w).Encode(map[string]string{"id": "post-42"})
	})

	id, err := ig.PublishContainer(context.Background(), "ig-1", "container-9", "token")
	assert.NoError(t, err)
	assert.Equal(t, "post-42", id)
}

func TestPublishContainerMissingID(t *testing.T) {
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	})

	_, err := ig.PublishContainer(context.Background(), "ig-1", "container-9", "token")
	var ee *ExternalError
	assert.ErrorAs(t, err, &ee)
}

func TestGraphCallNetworkErrorIsTransient(t *testing.T) {
	ig, srv := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := ig.ContainerStatus(context.Background(), "container-9", "token")
	var ee *ExternalError
	assert.ErrorAs(t, err, &ee)
	assert.True(t, ee.Transient)
}

func TestValidateAccessToken(t *testing.T) {
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			json.NewEncoder(w).Encode(map[string]string{"id": "fb-1", "name": "My Page"})
		case "/me/accounts":
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{
					"id":                         "page-1",
					"name":                       "My Page",
					"access_token":               "page-token",
					"instagram_business_account": map[string]string{"id": "ig-9"},
				}},
			})
		case "/ig-9":
			json.NewEncoder(w).Encode(map[string]string{"id": "ig-9", "username": "mybrand"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	validation, err := ig.ValidateAccessToken(context.Background(), "token")
	assert.NoError(t, err)
	assert.True(t, validation.Valid)
	assert.Equal(t, "fb-1", validation.FacebookID)
	assert.Equal(t, "ig-9", validation.IgID)
	assert.Equal(t, "mybrand", validation.Username)
}

func TestValidateAccessTokenRejected(t *testing.T) {
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid OAuth access token"},
		})
	})

	_, err := ig.ValidateAccessToken(context.Background(), "bad")
	var ae *AuthError
	assert.ErrorAs(t, err, &ae)
}

func TestValidateAccessTokenWithoutBusinessAccount(t *testing.T) {
	// A token without page scope still validates; only the IG fields are
	// missing.
	ig, _ := testGraphService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			json.NewEncoder(w).Encode(map[string]string{"id": "fb-1", "name": "My Page"})
		case "/me/accounts":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	validation, err := ig.ValidateAccessToken(context.Background(), "token")
	assert.NoError(t, err)
	assert.True(t, validation.Valid)
	assert.Empty(t, validation.IgID)
}
