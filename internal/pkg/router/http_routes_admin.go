package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/constants"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/middleware"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group(constants.AdminRoute, middleware.RequireAdmin)

	// Billing maintenance
	adminGroup.Post("/billing/subscriptions/:id/resync", h.deps.Billing.HandleSubscriptionResync)
}
