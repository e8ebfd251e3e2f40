package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/billing"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/usercontext"
)

// The webhook request is not tied to the client connection: once accepted it
// runs to completion, bounded by this timeout.
const webhookTimeout = 15 * time.Second

// BillingController serves the provider webhook and admin billing tools.
type BillingController struct {
	Webhooks   *billing.WebhookProcessor
	Reconciler *billing.Reconciler
	Dev        bool
}

// WebhookResponse is returned for every handled delivery.
type WebhookResponse struct {
	Status   string `json:"status"`
	EventKey string `json:"eventKey,omitempty"`
}

func (b *BillingController) HandleLemonSqueezyWebhook(c *fiber.Ctx) error {
	delivery := billing.WebhookDelivery{
		Body:      append([]byte(nil), c.BodyRaw()...),
		Signature: c.Get("X-Signature"),
		EventName: c.Get("X-Event-Name"),
	}
	return b.handleWebhook(c, delivery, b.Webhooks.Process)
}

func (b *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	delivery := billing.WebhookDelivery{
		Body:      append([]byte(nil), c.BodyRaw()...),
		Signature: c.Get("Stripe-Signature"),
	}
	return b.handleWebhook(c, delivery, b.Webhooks.ProcessStripe)
}

func (b *BillingController) handleWebhook(c *fiber.Ctx, delivery billing.WebhookDelivery,
	process func(context.Context, billing.WebhookDelivery) (*billing.WebhookResult, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	result, err := process(ctx, delivery)
	if err != nil {
		if billing.HTTPStatus(err) == fiber.StatusUnauthorized {
			log.WithField("ip", ClientIP(c)).Warn("Webhook signature rejected")
		}
		return RespondError(c, err, b.Dev)
	}
	return c.Status(fiber.StatusOK).JSON(WebhookResponse{
		Status:   result.Status,
		EventKey: result.EventKey,
	})
}

// HandleSubscriptionResync re-reads one subscription from the provider and
// applies its current state.
func (b *BillingController) HandleSubscriptionResync(c *fiber.Ctx) error {
	if b.Reconciler == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(ErrorResponse{
			Error: "subscription resync is not available for the active payment provider",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	result, err := b.Reconciler.ResyncSubscription(ctx, c.Params("id"))
	if err != nil {
		return RespondError(c, err, b.Dev)
	}

	p, _ := usercontext.GetPrincipal(c)
	log.WithFields(log.Fields{
		"subscription_id": result.SubscriptionID,
		"admin":           p.Email,
	}).Info("Admin resynced subscription")
	return c.JSON(result)
}
