package platforms

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

const (
	youtubeTitleLimit       = 100
	youtubeDescriptionLimit = 5000
)

// YouTubeDraftAdapter uploads the pre-rendered video asset as a private draft
// on the connected channel. The draft is finished manually in YouTube Studio.
type YouTubeDraftAdapter struct {
	HTTPClient *http.Client

	// newService is swappable for tests
	newService func(ctx context.Context, token string) (*youtube.Service, error)
}

func NewYouTubeDraftAdapter() *YouTubeDraftAdapter {
	return &YouTubeDraftAdapter{
		HTTPClient: newHTTPClient(),
		newService: func(ctx context.Context, token string) (*youtube.Service, error) {
			src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
			return youtube.NewService(ctx, option.WithTokenSource(src))
		},
	}
}

func (a *YouTubeDraftAdapter) Platform() models.Platform {
	return models.PlatformYouTubeDraft
}

func (a *YouTubeDraftAdapter) Validate(post PostContent) error {
	if strings.TrimSpace(post.Title) == "" {
		return validationErrorf("YouTube title is required")
	}
	if strings.TrimSpace(post.Description) == "" {
		return validationErrorf("YouTube description is required")
	}
	if len([]rune(post.Title)) > youtubeTitleLimit {
		return validationErrorf("YouTube length exceeded: title over %d characters", youtubeTitleLimit)
	}
	if len([]rune(post.Description)) > youtubeDescriptionLimit {
		return validationErrorf("YouTube length exceeded: description over %d characters", youtubeDescriptionLimit)
	}
	if strings.TrimSpace(post.AssetURL) == "" {
		return validationErrorf("YouTube draft requires a rendered video asset")
	}
	if err := checkContentPolicy(post.Title); err != nil {
		return err
	}
	return checkContentPolicy(post.Description)
}

func (a *YouTubeDraftAdapter) Publish(ctx context.Context, post PostContent, creds Credentials) (string, error) {
	svc, err := a.newService(ctx, creds.AccessToken)
	if err != nil {
		return "", &PublishError{Platform: models.PlatformYouTubeDraft, Message: err.Error(), Transient: true}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, post.AssetURL, nil)
	if err != nil {
		return "", validationErrorf("invalid asset url")
	}
	asset, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", &PublishError{Platform: models.PlatformYouTubeDraft, Message: "asset fetch failed: " + err.Error(), Transient: true}
	}
	defer asset.Body.Close()
	if asset.StatusCode >= 400 {
		return "", &PublishError{
			Platform:  models.PlatformYouTubeDraft,
			Code:      asset.StatusCode,
			Message:   "asset fetch failed",
			Transient: transientHTTPStatus(asset.StatusCode),
		}
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       post.Title,
			Description: post.Description,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "private",
		},
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(asset.Body)
	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return "", classifyGoogleError(err)
	}
	return uploaded.Id, nil
}

// classifyGoogleError maps youtube/v3 API failures onto the retry taxonomy.
// Quota and rate errors retry; invalid credentials and rejected metadata do not.
func classifyGoogleError(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		transient := transientHTTPStatus(ge.Code)
		for _, item := range ge.Errors {
			switch item.Reason {
			case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "backendError":
				transient = true
			case "forbidden", "authError", "invalidCredentials", "invalidTitle", "invalidDescription", "uploadLimitExceeded":
				transient = false
			}
		}
		return &PublishError{Platform: models.PlatformYouTubeDraft, Code: ge.Code, Message: ge.Message, Transient: transient}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &PublishError{Platform: models.PlatformYouTubeDraft, Message: err.Error(), Transient: true}
	}
	return &PublishError{Platform: models.PlatformYouTubeDraft, Message: err.Error(), Transient: true}
}
