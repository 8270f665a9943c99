package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"story-scheduler/internal/domain/ports/adapter"
	"story-scheduler/internal/infra/metrics"
)

var _ adapter.InstagramPublisher = (*GraphClient)(nil)

// MaxCaptionLen is the Graph API caption ceiling.
const MaxCaptionLen = 2200

const (
	defaultPollAttempts = 30
	defaultPollInterval = 2 * time.Second
)

// Terminal poll outcomes. None of these are retried here; the queue layer
// owns retries.
var (
	ErrContainerTimeout   = errors.New("container not ready in time")
	ErrContainerExpired   = errors.New("container expired before publishing")
	ErrContainerPublished = errors.New("container was already published")
)

// GraphClient implements the Instagram content-publishing protocol:
// container create, status poll, publish, permalink, token refresh.
type GraphClient struct {
	baseURL      string
	apiVersion   string
	client       *http.Client
	pollAttempts int
	pollInterval time.Duration
}

func NewGraphClient(baseURL, apiVersion string) *GraphClient {
	if baseURL == "" {
		baseURL = "https://graph.instagram.com"
	}
	if apiVersion == "" {
		apiVersion = "v21.0"
	}
	return &GraphClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiVersion:   apiVersion,
		client:       &http.Client{Timeout: 15 * time.Second},
		pollAttempts: defaultPollAttempts,
		pollInterval: defaultPollInterval,
	}
}

// graphError is the JSON error envelope every Graph endpoint may return.
type graphError struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func (e *graphError) err() error {
	if e.Error == nil {
		return nil
	}
	return fmt.Errorf("instagram api error: %s (code: %d)", e.Error.Message, e.Error.Code)
}

func (c *GraphClient) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, path)
}

// CreateContainer stages an image for publishing. The image URL must be
// publicly fetchable over HTTPS. Captions are truncated to the API ceiling.
func (c *GraphClient) CreateContainer(ctx context.Context, accessToken, igUserID, imageURL, caption string) (string, error) {
	params := url.Values{}
	params.Set("image_url", imageURL)
	params.Set("access_token", accessToken)
	if caption != "" {
		params.Set("caption", TruncateCaption(caption))
	}

	var out struct {
		graphError
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, c.endpoint(igUserID+"/media"), params, &out); err != nil {
		return "", err
	}
	if err := out.err(); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("instagram api: container response missing id")
	}
	return out.ID, nil
}

// containerStatus fetches the staging container's processing state.
func (c *GraphClient) containerStatus(ctx context.Context, accessToken, containerID string) (code, detail string, err error) {
	q := url.Values{}
	q.Set("fields", "status_code,status")
	q.Set("access_token", accessToken)

	var out struct {
		graphError
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	if err := c.get(ctx, c.endpoint(containerID)+"?"+q.Encode(), &out); err != nil {
		return "", "", err
	}
	if err := out.err(); err != nil {
		return "", "", err
	}
	return out.StatusCode, out.Status, nil
}

// WaitUntilFinished polls the container until FINISHED, bounded at 30
// attempts 2s apart. ERROR, EXPIRED, PUBLISHED and unknown status codes are
// terminal. PUBLISHED in particular should never appear in this flow and is
// treated as a defect signal rather than retried.
func (c *GraphClient) WaitUntilFinished(ctx context.Context, accessToken, containerID string) error {
	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		code, detail, err := c.containerStatus(ctx, accessToken, containerID)
		if err != nil {
			return err
		}
		switch code {
		case "FINISHED":
			metrics.ObservePollAttempts(attempt)
			return nil
		case "IN_PROGRESS":
			select {
			case <-time.After(c.pollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		case "ERROR":
			if detail == "" {
				detail = "unknown error"
			}
			return fmt.Errorf("container processing failed: %s", detail)
		case "EXPIRED":
			return ErrContainerExpired
		case "PUBLISHED":
			return ErrContainerPublished
		default:
			return fmt.Errorf("unknown container status: %s", code)
		}
	}
	metrics.ObservePollAttempts(c.pollAttempts)
	return fmt.Errorf("%w (%d attempts)", ErrContainerTimeout, c.pollAttempts)
}

func (c *GraphClient) Publish(ctx context.Context, accessToken, igUserID, containerID string) (string, error) {
	params := url.Values{}
	params.Set("creation_id", containerID)
	params.Set("access_token", accessToken)

	var out struct {
		graphError
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, c.endpoint(igUserID+"/media_publish"), params, &out); err != nil {
		return "", err
	}
	if err := out.err(); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("instagram api: publish response missing id")
	}
	return out.ID, nil
}

func (c *GraphClient) Permalink(ctx context.Context, accessToken, mediaID string) (string, error) {
	q := url.Values{}
	q.Set("fields", "permalink")
	q.Set("access_token", accessToken)

	var out struct {
		graphError
		Permalink string `json:"permalink"`
	}
	if err := c.get(ctx, c.endpoint(mediaID)+"?"+q.Encode(), &out); err != nil {
		return "", err
	}
	if err := out.err(); err != nil {
		return "", err
	}
	return out.Permalink, nil
}

// RefreshToken exchanges a still-valid long-lived token for a fresh one.
// Note: this endpoint is unversioned.
func (c *GraphClient) RefreshToken(ctx context.Context, accessToken string) (string, int64, error) {
	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", accessToken)

	var out struct {
		graphError
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.get(ctx, c.baseURL+"/refresh_access_token?"+q.Encode(), &out); err != nil {
		return "", 0, err
	}
	if err := out.err(); err != nil {
		return "", 0, fmt.Errorf("token refresh failed: %w", err)
	}
	if out.AccessToken == "" {
		return "", 0, errors.New("token refresh: response missing access_token")
	}
	return out.AccessToken, out.ExpiresIn, nil
}

func (c *GraphClient) postForm(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *GraphClient) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// TruncateCaption clamps a caption to the API's length ceiling without
// splitting a multi-byte rune.
func TruncateCaption(s string) string {
	if len(s) <= MaxCaptionLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxCaptionLen {
		return s
	}
	return string(runes[:MaxCaptionLen])
}
