package platforms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

const facebookPostLimit = 20000

// FacebookPageAdapter publishes feed posts to a Facebook Page via the Graph
// API. Error classification is shared with the Instagram adapter.
type FacebookPageAdapter struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewFacebookPageAdapter() *FacebookPageAdapter {
	return &FacebookPageAdapter{
		BaseURL:    defaultGraphAPIBaseURL,
		HTTPClient: newHTTPClient(),
	}
}

func (a *FacebookPageAdapter) Platform() models.Platform {
	return models.PlatformFacebookPage
}

func (a *FacebookPageAdapter) Validate(post PostContent) error {
	if strings.TrimSpace(post.Body) == "" {
		return validationErrorf("facebook text is required")
	}
	if len([]rune(post.Body)) > facebookPostLimit {
		return validationErrorf("facebook text too long (max %d characters)", facebookPostLimit)
	}
	return checkContentPolicy(post.Body)
}

func (a *FacebookPageAdapter) Publish(ctx context.Context, post PostContent, creds Credentials) (string, error) {
	form := url.Values{}
	form.Set("message", post.Body)
	if post.AssetURL != "" {
		form.Set("link", post.AssetURL)
	}

	endpoint := a.BaseURL + "/" + creds.ExternalAccountID + "/feed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", &PublishError{Platform: models.PlatformFacebookPage, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return "", classifyGraphError(models.PlatformFacebookPage, resp.StatusCode, body)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return "", &PublishError{Platform: models.PlatformFacebookPage, Code: resp.StatusCode, Message: "unexpected response body", Transient: false}
	}
	return out.ID, nil
}
