package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/app/repository"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/env"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/security"
)

var (
	// ErrAccountNotFound means no credential set is stored for (user, platform).
	ErrAccountNotFound = errors.New("social account not found")
	// ErrAccountDisabled means the stored credentials were disabled and the
	// user must re-authorize before automatic publishing resumes.
	ErrAccountDisabled = errors.New("social account disabled")
	// ErrRefreshFailed means the provider rejected the refresh token; the
	// account has been disabled.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// RefreshHorizon is how close to expiry a token must be before a refresh is
// attempted. Tokens further out are returned unchanged without a network call.
const RefreshHorizon = 10 * time.Minute

// Refresher loads, decrypts and (when near expiry) refreshes stored OAuth
// access tokens.
type Refresher struct {
	accounts repository.SocialAccountRepository
	cipher   *security.Cipher
	configs  map[models.Platform]*oauth2.Config
	horizon  time.Duration

	now func() time.Time
}

func NewRefresher(accounts repository.SocialAccountRepository, cipher *security.Cipher, configs map[models.Platform]*oauth2.Config) *Refresher {
	return &Refresher{
		accounts: accounts,
		cipher:   cipher,
		configs:  configs,
		horizon:  RefreshHorizon,
		now:      time.Now,
	}
}

// ConfigsFromEnv builds the per-platform refresh configurations. Instagram
// Business and Facebook Pages refresh against the Facebook token endpoint;
// YouTube drafts against Google.
func ConfigsFromEnv() map[models.Platform]*oauth2.Config {
	return map[models.Platform]*oauth2.Config{
		models.PlatformInstagram: {
			ClientID:     env.GetEnv("INSTAGRAM_KEY", ""),
			ClientSecret: env.GetEnv("INSTAGRAM_SECRET", ""),
			Endpoint:     endpoints.Facebook,
		},
		models.PlatformFacebookPage: {
			ClientID:     env.GetEnv("FACEBOOK_KEY", ""),
			ClientSecret: env.GetEnv("FACEBOOK_SECRET", ""),
			Endpoint:     endpoints.Facebook,
		},
		models.PlatformLinkedIn: {
			ClientID:     env.GetEnv("LINKEDIN_KEY", ""),
			ClientSecret: env.GetEnv("LINKEDIN_SECRET", ""),
			Endpoint:     endpoints.LinkedIn,
		},
		models.PlatformYouTubeDraft: {
			ClientID:     env.GetEnv("GOOGLE_KEY", ""),
			ClientSecret: env.GetEnv("GOOGLE_SECRET", ""),
			Endpoint:     endpoints.Google,
		},
	}
}

// AccessToken returns a usable access token for (user, platform). A token with
// more than RefreshHorizon left is returned unchanged; otherwise the stored
// refresh token is exchanged, the new credentials are persisted encrypted, and
// the fresh access token is returned. A rejected refresh disables the account.
func (r *Refresher) AccessToken(ctx context.Context, userID uint, platform models.Platform) (string, error) {
	acc, err := r.accounts.GetByUserAndPlatform(userID, platform)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", err
	}
	if acc.Disabled {
		return "", ErrAccountDisabled
	}

	if acc.TokenFresh(r.now(), r.horizon) {
		return r.cipher.Decrypt(acc.AccessTokenEnc)
	}

	refreshToken, err := r.cipher.Decrypt(acc.RefreshTokenEnc)
	if err != nil || refreshToken == "" {
		return "", r.disableAndFail(acc, "no usable refresh token")
	}

	cfg, ok := r.configs[platform]
	if !ok {
		return "", fmt.Errorf("no refresh config for platform %q", platform)
	}

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The provider rejected the grant; re-authorization is required.
			return "", r.disableAndFail(acc, "provider rejected refresh token")
		}
		// Network-level failure, account stays enabled for the next attempt
		return "", fmt.Errorf("token refresh request failed: %w", err)
	}

	accessEnc, err := r.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return "", err
	}
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		// Providers that do not rotate refresh tokens return an empty value
		newRefresh = refreshToken
	}
	refreshEnc, err := r.cipher.Encrypt(newRefresh)
	if err != nil {
		return "", err
	}

	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		t := tok.Expiry
		expiresAt = &t
	}

	updated, err := r.accounts.UpdateTokens(acc.ID, accessEnc, refreshEnc, expiresAt)
	if err != nil {
		return "", err
	}
	if !updated {
		// Disabled or removed while the refresh was in flight
		return "", ErrAccountDisabled
	}

	return tok.AccessToken, nil
}

func (r *Refresher) disableAndFail(acc *models.SocialAccount, reason string) error {
	if _, err := r.accounts.Disable(acc.ID); err != nil {
		log.Errorf("[Tokens] Failed to disable account %d: %v", acc.ID, err)
	}
	log.Warnf("[Tokens] Disabled %s account for user %d: %s", acc.Platform, acc.UserID, reason)
	return fmt.Errorf("%w: %s", ErrRefreshFailed, reason)
}
