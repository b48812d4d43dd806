package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/session"
)

const (
	// Locals keys set by LoadSession
	KeyLoggedIn = "logged_in"
	KeyUserID   = "user_id"

	// Session keys written by the auth controller
	SessionAuthKey   = "authenticated"
	SessionUserIDKey = "user_id"
)

// LoadSession resolves the request session and attaches the login state and
// user id to the request locals. It never rejects by itself.
func LoadSession(c *fiber.Ctx) error {
	store := session.GetSessionStore()
	if store == nil {
		return c.Next()
	}

	sess, err := store.Get(c)
	if err != nil {
		return c.Next()
	}

	if v, ok := sess.Get(SessionAuthKey).(bool); ok && v {
		c.Locals(KeyLoggedIn, true)
		if id, ok := sess.Get(SessionUserIDKey).(uint); ok {
			c.Locals(KeyUserID, id)
		}
	}

	return c.Next()
}

// RequireAPIAuth ensures a logged-in session for API routes and returns JSON 401.
func RequireAPIAuth(c *fiber.Ctx) error {
	loggedIn, _ := c.Locals(KeyLoggedIn).(bool)
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// UserID returns the authenticated user id from the request locals.
func UserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(KeyUserID).(uint); ok {
		return id
	}
	return 0
}
