package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/middleware"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/oauth"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/platforms"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/security"
)

// Wired once at startup by the router setup
var (
	adapterRegistry *platforms.Registry
	oauthStates     *oauth.StateStore
	tokenCipher     *security.Cipher
)

// Initialize hands the controllers their process-wide collaborators.
func Initialize(registry *platforms.Registry, states *oauth.StateStore, cipher *security.Cipher) {
	adapterRegistry = registry
	oauthStates = states
	tokenCipher = cipher
}

func currentUserID(c *fiber.Ctx) uint {
	return middleware.UserID(c)
}

func apiError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
