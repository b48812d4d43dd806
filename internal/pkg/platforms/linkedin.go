package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

const (
	linkedinPostLimit         = 3000
	defaultLinkedInAPIBaseURL = "https://api.linkedin.com/v2"
)

type linkedinErrorResponse struct {
	Message          string `json:"message"`
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Status           int    `json:"status"`
}

// LinkedInAdapter publishes professional-network posts via the ugcPosts API.
type LinkedInAdapter struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewLinkedInAdapter() *LinkedInAdapter {
	return &LinkedInAdapter{
		BaseURL:    defaultLinkedInAPIBaseURL,
		HTTPClient: newHTTPClient(),
	}
}

func (a *LinkedInAdapter) Platform() models.Platform {
	return models.PlatformLinkedIn
}

func (a *LinkedInAdapter) Validate(post PostContent) error {
	if strings.TrimSpace(post.Body) == "" {
		return validationErrorf("linkedin text is required")
	}
	if len([]rune(post.Body)) > linkedinPostLimit {
		return validationErrorf("linkedin text too long (max %d characters)", linkedinPostLimit)
	}
	return checkContentPolicy(post.Body)
}

func (a *LinkedInAdapter) Publish(ctx context.Context, post PostContent, creds Credentials) (string, error) {
	payload := map[string]interface{}{
		"author":         "urn:li:person:" + creds.ExternalAccountID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": post.Body},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/ugcPosts", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", &PublishError{Platform: models.PlatformLinkedIn, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return "", classifyLinkedInError(resp.StatusCode, body)
	}

	// LinkedIn returns the new post URN in the X-RestLi-Id header
	if id := resp.Header.Get("X-RestLi-Id"); id != "" {
		return id, nil
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return "", &PublishError{Platform: models.PlatformLinkedIn, Code: resp.StatusCode, Message: "unexpected response body", Transient: false}
	}
	return out.ID, nil
}

// classifyLinkedInError maps ugcPosts failures onto the retry taxonomy:
// throttling and server errors retry, auth and content rejections do not.
func classifyLinkedInError(status int, body []byte) error {
	msg := http.StatusText(status)
	code := status
	var le linkedinErrorResponse
	if err := json.Unmarshal(body, &le); err == nil && le.Message != "" {
		msg = le.Message
		if le.ServiceErrorCode != 0 {
			code = le.ServiceErrorCode
		}
	}
	return &PublishError{
		Platform:  models.PlatformLinkedIn,
		Code:      code,
		Message:   msg,
		Transient: transientHTTPStatus(status),
	}
}
