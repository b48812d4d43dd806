package controllers

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/app/repository"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/oauth"
)

// HandleConnect starts the OAuth flow for one platform. The generated state
// token binds the callback to this user and carries the provider session
// across the redirect.
func HandleConnect(c *fiber.Ctx) error {
	userID := currentUserID(c)

	platform, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err.Error())
	}

	token, err := oauth.NewStateToken()
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not start connect flow")
	}

	authURL, providerSession, err := oauth.BeginAuth(platform, token)
	if err != nil {
		log.Errorf("[OAuth] Begin auth for %s failed: %v", platform, err)
		return apiError(c, fiber.StatusInternalServerError, "could not start connect flow")
	}

	err = oauthStates.Create(c.Context(), token, oauth.State{
		UserID:          userID,
		Platform:        platform,
		RedirectAfter:   c.Query("redirect_after", "/accounts"),
		ProviderSession: providerSession,
	})
	if err != nil {
		log.Errorf("[OAuth] Persisting state for %s failed: %v", platform, err)
		return apiError(c, fiber.StatusInternalServerError, "could not start connect flow")
	}

	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

// HandleConnectCallback completes the OAuth flow: it validates the single-use
// state, exchanges the code, encrypts the tokens and stores the account.
// Re-authorizing a disconnected account re-enables it.
func HandleConnectCallback(c *fiber.Ctx) error {
	platform, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := oauthStates.Consume(c.Context(), c.Query("state"))
	if err != nil {
		log.Errorf("[OAuth] State lookup failed: %v", err)
		return apiError(c, fiber.StatusInternalServerError, "connect flow failed")
	}
	if state == nil || state.Platform != platform {
		// Missing, expired or replayed state: never proceed
		return apiError(c, fiber.StatusBadRequest, "invalid or expired state")
	}

	grant, err := oauth.Exchange(platform, state.ProviderSession, callbackQuery(c))
	if err != nil {
		log.Errorf("[OAuth] Exchange for %s failed: %v", platform, err)
		return apiError(c, fiber.StatusBadGateway, "provider exchange failed")
	}

	accessEnc, err := tokenCipher.Encrypt(grant.AccessToken)
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not store credentials")
	}
	refreshEnc := ""
	if grant.RefreshToken != "" {
		if refreshEnc, err = tokenCipher.Encrypt(grant.RefreshToken); err != nil {
			return apiError(c, fiber.StatusInternalServerError, "could not store credentials")
		}
	}

	account := &models.SocialAccount{
		UserID:            state.UserID,
		Platform:          platform,
		ExternalAccountID: grant.ExternalAccountID,
		AccessTokenEnc:    accessEnc,
		RefreshTokenEnc:   refreshEnc,
		ExpiresAt:         grant.ExpiresAt,
	}
	if err := repository.GetGlobalFactory().GetRepositories().SocialAccount.Upsert(account); err != nil {
		log.Errorf("[OAuth] Storing %s account for user %d failed: %v", platform, state.UserID, err)
		return apiError(c, fiber.StatusInternalServerError, "could not store credentials")
	}

	log.Infof("[OAuth] Connected %s account for user %d", platform, state.UserID)
	return c.Redirect(state.RedirectAfter, fiber.StatusFound)
}

// HandleDisconnect soft-deletes a connected account. Pending schedules that
// reference it will fail at publish time until the user re-authorizes.
func HandleDisconnect(c *fiber.Ctx) error {
	userID := currentUserID(c)

	platform, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err.Error())
	}

	accounts := repository.GetGlobalFactory().GetRepositories().SocialAccount
	account, err := accounts.GetByUserAndPlatform(userID, platform)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apiError(c, fiber.StatusNotFound, "no connected account for "+platform.String())
	}
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not load account")
	}

	disabled, err := accounts.Disable(account.ID)
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not disconnect account")
	}
	if !disabled {
		return apiError(c, fiber.StatusConflict, "account already disconnected")
	}
	return c.JSON(fiber.Map{"status": "disconnected", "platform": platform})
}

// HandleListAccounts returns the caller's connected accounts without token
// material.
func HandleListAccounts(c *fiber.Ctx) error {
	userID := currentUserID(c)

	accounts, err := repository.GetGlobalFactory().GetRepositories().SocialAccount.ListByUser(userID)
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not list accounts")
	}

	out := make([]fiber.Map, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, fiber.Map{
			"platform":            a.Platform,
			"external_account_id": a.ExternalAccountID,
			"expires_at":          a.ExpiresAt,
			"disabled":            a.Disabled,
			"connected_at":        a.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"accounts": out})
}

// callbackQuery converts the fasthttp query args into the url.Values the
// provider session expects.
func callbackQuery(c *fiber.Ctx) url.Values {
	values := url.Values{}
	c.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		values.Add(string(key), string(value))
	})
	return values
}
