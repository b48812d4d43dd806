package oauth

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

// TokenGrant is the provider-independent result of a completed code exchange.
// Raw token values must never be logged.
type TokenGrant struct {
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
	ExternalAccountID string
}

// BeginAuth starts the provider flow for a platform and returns the provider
// authorization URL plus the marshaled provider session that the callback
// needs to finish the exchange.
func BeginAuth(platform models.Platform, state string) (authURL string, providerSession string, err error) {
	p, err := providerFor(platform)
	if err != nil {
		return "", "", err
	}

	sess, err := p.BeginAuth(state)
	if err != nil {
		return "", "", fmt.Errorf("begin auth for %s: %w", platform, err)
	}
	authURL, err = sess.GetAuthURL()
	if err != nil {
		return "", "", fmt.Errorf("auth url for %s: %w", platform, err)
	}
	return authURL, sess.Marshal(), nil
}

// Exchange completes the provider flow: it trades the callback query (code)
// against the token endpoint and resolves the external account identity.
func Exchange(platform models.Platform, providerSession string, query url.Values) (*TokenGrant, error) {
	p, err := providerFor(platform)
	if err != nil {
		return nil, err
	}

	sess, err := p.UnmarshalSession(providerSession)
	if err != nil {
		return nil, fmt.Errorf("restore provider session: %w", err)
	}

	if _, err := sess.Authorize(p, query); err != nil {
		return nil, fmt.Errorf("code exchange with %s failed: %w", platform, err)
	}

	user, err := p.FetchUser(sess)
	if err != nil {
		return nil, fmt.Errorf("fetch account identity from %s: %w", platform, err)
	}

	grant := &TokenGrant{
		AccessToken:       user.AccessToken,
		RefreshToken:      user.RefreshToken,
		ExternalAccountID: user.UserID,
	}
	if !user.ExpiresAt.IsZero() {
		t := user.ExpiresAt
		grant.ExpiresAt = &t
	}
	return grant, nil
}
