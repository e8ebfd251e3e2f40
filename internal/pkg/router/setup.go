package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/controllers"
	apiv1 "github.com/DaCoderMan/workitu-tech-website-sub000/internal/api/v1"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/config"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies is what the routers hand to controllers and middlewares.
type Dependencies struct {
	Config   *config.Config
	API      *apiv1.APIServer
	Billing  *controllers.BillingController
	Verifier middleware.SessionVerifier
	// Redis backs the rate limiter when set; otherwise limits are per process.
	Redis *redis.Client
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Install HttpRouter first to attach the principal middleware globally,
	// then the API routes which depend on it.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
