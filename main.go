package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/rr7r44795y-lgtm/crosspost/app/controllers"
	"github.com/rr7r44795y-lgtm/crosspost/app/repository"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/cache"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/database"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/env"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/oauth"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/platforms"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/router"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/scheduler"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/security"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/tokens"
)

func main() {
	app, poller := NewApplication()

	if err := poller.Start(); err != nil {
		log.Fatal(err)
	}

	// Drain the poller before the listener goes away
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		poller.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *scheduler.Poller) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	cipher, err := security.NewCipher(env.GetEnv("TOKEN_ENC_KEY", ""))
	if err != nil {
		log.Fatalf("token encryption key: %v", err)
	}

	registry := platforms.NewRegistry()
	refresher := tokens.NewRefresher(repos.SocialAccount, cipher, tokens.ConfigsFromEnv())
	notifier := scheduler.NewMailNotifier(repos.User)
	publisher := scheduler.NewPublisher(repos.Schedule, repos.SocialAccount, registry, refresher, notifier)
	poller := scheduler.NewPoller(publisher)

	controllers.Initialize(registry, oauth.NewStateStore(cache.GetClient()), cipher)

	app := fiber.New(fiber.Config{
		AppName: "crosspost",
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app, poller
}
