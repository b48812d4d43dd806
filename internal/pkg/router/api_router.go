package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/rr7r44795y-lgtm/crosspost/app/controllers"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1")
	v1.Post("/register", controllers.HandleRegister)
	v1.Post("/login", controllers.HandleLogin)
	v1.Post("/logout", controllers.HandleLogout)

	protected := v1.Group("", middleware.RequireAPIAuth)
	protected.Post("/contents", controllers.HandleCreateContent)
	protected.Get("/contents", controllers.HandleListContents)
	protected.Get("/contents/:uuid", controllers.HandleGetContent)

	protected.Post("/schedules", controllers.HandleCreateSchedules)
	protected.Get("/schedules", controllers.HandleListSchedules)
	protected.Delete("/schedules/:uuid", controllers.HandleDeleteSchedule)

	protected.Get("/accounts", controllers.HandleListAccounts)
	protected.Delete("/accounts/:platform", controllers.HandleDisconnect)
}
