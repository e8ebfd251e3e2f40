package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/constants"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// API routes live in ApiRouter (internal/pkg/router/api_router.go)
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Billing provider webhooks (no session, signature-verified in the processor)
	app.Post(constants.LemonSqueezyWebhookRoute, h.deps.Billing.HandleLemonSqueezyWebhook)
	app.Post(constants.StripeWebhookRoute, h.deps.Billing.HandleStripeWebhook)
}
