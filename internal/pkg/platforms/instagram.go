package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

const (
	instagramCaptionLimit     = 2200
	defaultGraphAPIBaseURL    = "https://graph.facebook.com/v19.0"
	graphContentBlockedCode   = 368
	graphInvalidTokenCode     = 190
	graphInvalidParameterCode = 100
)

// graphTransientCodes maps Graph API error codes that indicate a temporary
// condition (rate limiting, transient service errors). Everything else is
// treated as permanent unless the HTTP status says otherwise.
var graphTransientCodes = map[int]bool{
	1:   true, // unknown error, API asks to retry
	2:   true, // service temporarily unavailable
	4:   true, // application request limit reached
	17:  true, // user request limit reached
	32:  true, // page request limit reached
	613: true, // custom rate limit
}

type graphErrorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		TraceID   string `json:"fbtrace_id"`
		UserTitle string `json:"error_user_title"`
	} `json:"error"`
}

// InstagramAdapter publishes image/text feed posts to an Instagram Business
// account via the Graph API two-step container flow.
type InstagramAdapter struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewInstagramAdapter() *InstagramAdapter {
	return &InstagramAdapter{
		BaseURL:    defaultGraphAPIBaseURL,
		HTTPClient: newHTTPClient(),
	}
}

func (a *InstagramAdapter) Platform() models.Platform {
	return models.PlatformInstagram
}

func (a *InstagramAdapter) Validate(post PostContent) error {
	if strings.TrimSpace(post.Body) == "" {
		return validationErrorf("ig text is required")
	}
	if len([]rune(post.Body)) > instagramCaptionLimit {
		return validationErrorf("ig text too long (max %d characters)", instagramCaptionLimit)
	}
	return checkContentPolicy(post.Body)
}

func (a *InstagramAdapter) Publish(ctx context.Context, post PostContent, creds Credentials) (string, error) {
	// Step 1: create the media container
	form := url.Values{}
	form.Set("caption", post.Body)
	if post.AssetURL != "" {
		form.Set("image_url", post.AssetURL)
	}
	containerID, err := a.graphPost(ctx, fmt.Sprintf("%s/%s/media", a.BaseURL, creds.ExternalAccountID), form, creds.AccessToken)
	if err != nil {
		return "", err
	}

	// Step 2: publish the container
	form = url.Values{}
	form.Set("creation_id", containerID)
	return a.graphPost(ctx, fmt.Sprintf("%s/%s/media_publish", a.BaseURL, creds.ExternalAccountID), form, creds.AccessToken)
}

func (a *InstagramAdapter) graphPost(ctx context.Context, endpoint string, form url.Values, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", &PublishError{Platform: models.PlatformInstagram, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return "", classifyGraphError(models.PlatformInstagram, resp.StatusCode, body)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return "", &PublishError{Platform: models.PlatformInstagram, Code: resp.StatusCode, Message: "unexpected response body", Transient: false}
	}
	return out.ID, nil
}

// classifyGraphError maps a Graph API error payload onto the retry taxonomy.
// Shared by the Instagram and Facebook Page adapters, which speak the same
// error dialect.
func classifyGraphError(platform models.Platform, status int, body []byte) error {
	var ge graphErrorResponse
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Code != 0 {
		transient := graphTransientCodes[ge.Error.Code]
		if !transient && transientHTTPStatus(status) && ge.Error.Code != graphInvalidTokenCode {
			transient = true
		}
		msg := ge.Error.Message
		if ge.Error.Code == graphContentBlockedCode {
			msg = "content blocked by platform policy: " + msg
		}
		return &PublishError{Platform: platform, Code: ge.Error.Code, Message: msg, Transient: transient}
	}
	return &PublishError{Platform: platform, Code: status, Message: http.StatusText(status), Transient: transientHTTPStatus(status)}
}
