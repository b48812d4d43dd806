package oauth

import (
	"fmt"
	"strings"

	"github.com/markbates/goth"
	"github.com/markbates/goth/providers/facebook"
	"github.com/markbates/goth/providers/google"
	"github.com/markbates/goth/providers/instagram"
	"github.com/markbates/goth/providers/linkedin"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/env"
)

// providerNames maps the platform enum onto goth provider names. Instagram
// Business and Facebook Pages both authorize through Facebook Login; the
// YouTube draft flow authorizes through Google.
var providerNames = map[models.Platform]string{
	models.PlatformInstagram:    instagramProvider,
	models.PlatformFacebookPage: facebookProvider,
	models.PlatformLinkedIn:     linkedinProvider,
	models.PlatformYouTubeDraft: googleProvider,
}

const (
	instagramProvider = "instagram"
	facebookProvider  = "facebook"
	linkedinProvider  = "linkedin"
	googleProvider    = "google"
)

// Setup initializes Goth providers based on environment variables.
// It is safe to call multiple times; providers will just be re-registered.
func Setup() {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}

	goth.UseProviders(
		facebook.New(
			env.GetEnv("FACEBOOK_KEY", ""),
			env.GetEnv("FACEBOOK_SECRET", ""),
			base+"/connect/facebook_page/callback",
			"pages_manage_posts", "pages_read_engagement",
		),
		instagram.New(
			env.GetEnv("INSTAGRAM_KEY", ""),
			env.GetEnv("INSTAGRAM_SECRET", ""),
			base+"/connect/instagram_business/callback",
			"instagram_basic", "instagram_content_publish",
		),
		linkedin.New(
			env.GetEnv("LINKEDIN_KEY", ""),
			env.GetEnv("LINKEDIN_SECRET", ""),
			base+"/connect/linkedin/callback",
			"w_member_social", "openid", "profile",
		),
		google.New(
			env.GetEnv("GOOGLE_KEY", ""),
			env.GetEnv("GOOGLE_SECRET", ""),
			base+"/connect/youtube_draft/callback",
			"https://www.googleapis.com/auth/youtube.upload",
		),
	)
}

// providerFor resolves the goth provider backing a platform.
func providerFor(platform models.Platform) (goth.Provider, error) {
	name, ok := providerNames[platform]
	if !ok {
		return nil, fmt.Errorf("no OAuth provider configured for platform %q", platform)
	}
	return goth.GetProvider(name)
}
