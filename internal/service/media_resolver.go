package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"postpilot/internal/models"
)

// maxVideoSizeBytes is the platform's ceiling for video uploads.
const maxVideoSizeBytes = 100 * 1024 * 1024

const probeTimeout = 10 * time.Second

// placeholderURL keeps unconfigured environments functional when inline media
// is submitted without a CDN uploader. The result is flagged as degraded.
const placeholderURL = "https://picsum.photos/1080/1080"

// InlineUploader pushes inline-submitted media bytes to a public CDN.
type InlineUploader interface {
	UploadInlineMedia(ctx context.Context, data []byte, contentType string) (string, error)
}

// ResolvedMedia is the resolver's answer: a directly fetchable URL, plus a
// degraded-mode flag set when a placeholder was substituted for inline media.
type ResolvedMedia struct {
	URL      string `json:"url"`
	Degraded bool   `json:"degraded"`
}

type MediaResolver interface {
	Resolve(ctx context.Context, rawURL, mediaType string) (*ResolvedMedia, error)
}

type mediaResolver struct {
	uploader InlineUploader // nil when no CDN is configured
	http     *http.Client
}

func NewMediaResolver(uploader InlineUploader) MediaResolver {
	return &mediaResolver{
		uploader: uploader,
		http:     &http.Client{Timeout: probeTimeout},
	}
}

// rewriteRules turn well-known sharing links into direct-download URLs. Rules
// are evaluated in order and the first match wins; adding a provider means
// adding a row, not a branch. Every rewrite must be idempotent.
type rewriteRule struct {
	pattern *regexp.Regexp
	rewrite func(rawURL string, match []string) string
}

var rewriteRules = []rewriteRule{
	{
		// Google Drive file sharing link.
		pattern: regexp.MustCompile(`^https://drive\.google\.com/file/d/([a-zA-Z0-9_-]+)/(view|edit)`),
		rewrite: func(_ string, match []string) string {
			return "https://drive.google.com/uc?export=download&id=" + match[1]
		},
	},
	{
		// Google Docs-style sharing link.
		pattern: regexp.MustCompile(`^https://docs\.google\.com/.*/d/([a-zA-Z0-9_-]+)/`),
		rewrite: func(_ string, match []string) string {
			return "https://drive.google.com/uc?export=download&id=" + match[1]
		},
	},
	{
		// Dropbox scl/fi sharing link: flip the dl flag.
		pattern: regexp.MustCompile(`^https://www\.dropbox\.com/scl/fi/[^?]+`),
		rewrite: func(rawURL string, _ []string) string {
			return strings.Replace(rawURL, "dl=0", "dl=1", 1)
		},
	},
	{
		// Legacy Dropbox /s/ sharing link.
		pattern: regexp.MustCompile(`^https://(www\.)?dropbox\.com/s/[^?]+`),
		rewrite: func(rawURL string, _ []string) string {
			if strings.Contains(rawURL, "dl=1") {
				return rawURL
			}
			if strings.Contains(rawURL, "dl=0") {
				return strings.Replace(rawURL, "dl=0", "dl=1", 1)
			}
			if strings.Contains(rawURL, "?") {
				return rawURL + "&dl=1"
			}
			return rawURL + "?dl=1"
		},
	},
}

var videoExtensionRe = regexp.MustCompile(`(?i)\.(mp4|mov|avi|mkv|m4v|webm)(\?|$)`)

// Resolve normalizes rawURL into a directly fetchable URL and validates it.
// Inline-encoded media is uploaded (or replaced by a placeholder when no
// uploader is configured). Unrecognized URLs pass through unchanged.
func (r *mediaResolver) Resolve(ctx context.Context, rawURL, mediaType string) (*ResolvedMedia, error) {
	if strings.HasPrefix(rawURL, "data:image/") {
		return r.resolveInline(ctx, rawURL)
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, &ValidationError{Reason: "media URL must be an http(s) URL or inline image data"}
	}

	resolved := RewriteSharingURL(rawURL)

	if err := r.probe(ctx, resolved, mediaType); err != nil {
		return nil, err
	}

	return &ResolvedMedia{URL: resolved}, nil
}

// RewriteSharingURL applies the first matching rewrite rule.
func RewriteSharingURL(rawURL string) string {
	for _, rule := range rewriteRules {
		if match := rule.pattern.FindStringSubmatch(rawURL); match != nil {
			return rule.rewrite(rawURL, match)
		}
	}
	return rawURL
}

func (r *mediaResolver) resolveInline(ctx context.Context, dataURL string) (*ResolvedMedia, error) {
	if r.uploader == nil {
		slog.Warn("no CDN uploader configured, substituting placeholder for inline media")
		return &ResolvedMedia{URL: placeholderMediaURL(), Degraded: true}, nil
	}

	_, encoded, found := strings.Cut(dataURL, ",")
	if !found {
		return nil, &ValidationError{Reason: "invalid inline media data format"}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &ValidationError{Reason: "inline media is not valid base64"}
	}

	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		return nil, &ValidationError{Reason: "inline media is not a recognized image format"}
	}

	publicURL, err := r.uploader.UploadInlineMedia(ctx, data, kind.MIME.Value)
	if err != nil {
		slog.Error("inline media upload failed", "error", err.Error())
		return &ResolvedMedia{URL: placeholderMediaURL(), Degraded: true}, nil
	}

	return &ResolvedMedia{URL: publicURL}, nil
}

func placeholderMediaURL() string {
	id, err := gonanoid.New()
	if err != nil {
		id = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return placeholderURL + "?random=" + id
}

// probe checks reachability with a HEAD request and, for video, sanity-checks
// the reported content type and size.
func (r *mediaResolver) probe(ctx context.Context, mediaURL, mediaType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, mediaURL, nil)
	if err != nil {
		return &ValidationError{Reason: "invalid media URL: " + err.Error()}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := r.http.Do(req)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("media URL not accessible: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return &ValidationError{Reason: fmt.Sprintf("media URL not accessible (status %d)", resp.StatusCode)}
	}

	if mediaType != models.PostTypeVideo {
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	contentLength, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)

	// Cloud storage hosts often misreport content types, so they get the
	// benefit of the doubt as long as nothing else suggests a non-video file.
	cloudHost := strings.Contains(mediaURL, "dropbox.com") || strings.Contains(mediaURL, "drive.google.com")
	hasVideoExtension := videoExtensionRe.MatchString(mediaURL)

	if contentType != "" && !strings.Contains(contentType, "video/") && !cloudHost && !hasVideoExtension {
		return &ValidationError{
			Reason: fmt.Sprintf("URL points to %s, but expected video content", contentType),
		}
	}

	if cloudHost && contentType != "" && !strings.Contains(contentType, "video/") {
		slog.Info("cloud storage returned non-video content type, proceeding",
			"content_type", contentType, "has_video_extension", hasVideoExtension)
	}

	if contentLength > maxVideoSizeBytes {
		return &ValidationError{
			Reason: fmt.Sprintf("video file is too large (%dMB), the platform supports videos up to 100MB",
				contentLength/1024/1024),
		}
	}

	return nil
}
