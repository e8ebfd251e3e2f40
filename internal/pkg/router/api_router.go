package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/controllers"
	apiv1 "github.com/DaCoderMan/workitu-tech-website-sub000/internal/api/v1"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/constants"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/middleware"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/session"
)

// Rate limiter counters live in their own Redis database.
const limiterRedisDB = 2

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New(h.limiterConfig("api", 120)))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	checkoutLimit := limiter.New(h.limiterConfig("checkout", h.deps.Config.Billing.CheckoutRateLimitMax))
	apiv1.RegisterHandlers(v1, h.deps.API, middleware.RequirePrincipal, checkoutLimit)
}

// limiterConfig limits each client IP to max requests per minute. prefix
// keeps the counters of different limiters apart in shared storage.
func (h ApiRouter) limiterConfig(prefix string, max int) limiter.Config {
	if max <= 0 {
		max = 10
	}
	cfg := limiter.Config{
		Max:          max,
		Expiration:   time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return prefix + ":" + controllers.ClientIP(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(controllers.ErrorResponse{
				Error: "too many requests, please slow down",
			})
		},
	}
	if h.deps.Redis != nil {
		cfg.Storage = session.NewRedisStorage(h.deps.Redis, limiterRedisDB)
	}
	return cfg
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
