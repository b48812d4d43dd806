package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rr7r44795y-lgtm/crosspost/app/controllers"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/env"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/middleware"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/oauth"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/session"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	session.NewSessionStore()
	oauth.Setup()

	app.Use(middleware.LoadSession)

	app.Get("/up", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "env": env.GetEnv("APP_ENV", "prod")})
	})

	// The provider redirect lands here, outside the /api group, on the
	// callback URL registered with each provider.
	connect := app.Group("/connect", middleware.RequireAPIAuth)
	connect.Get("/:platform", controllers.HandleConnect)
	app.Get("/connect/:platform/callback", controllers.HandleConnectCallback)
}
