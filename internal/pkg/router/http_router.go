package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/constants"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Resolve the principal for every request
	if h.deps.Verifier != nil {
		app.Use(middleware.PrincipalMiddleware(h.deps.Verifier))
	}

	h.registerMetricsRoute(app)
	h.registerPublicRoutes(app)
	h.registerAdminRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) registerMetricsRoute(app *fiber.App) {
	m := h.deps.Config.Metrics
	if m.Password == "" {
		log.Warn("METRICS_PASSWORD is not set, /metrics is disabled")
		return
	}
	app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{
			m.User: m.Password,
		},
	}), adaptor.HTTPHandler(promhttp.Handler()))
}
