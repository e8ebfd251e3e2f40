package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong is the ping response.
type Pong struct {
	Ping string `json:"ping"`
}

// CheckoutRequest is the body of POST /checkout.
type CheckoutRequest struct {
	OfferingKey string         `json:"offeringKey"`
	CustomData  map[string]any `json:"customData"`
}

// CheckoutResponse carries the hosted checkout URL.
type CheckoutResponse struct {
	URL        string `json:"url"`
	CheckoutID string `json:"checkoutId"`
}

// EntitlementStatus answers an access check for one entitlement key.
type EntitlementStatus struct {
	EntitlementKey string `json:"entitlementKey"`
	Active         bool   `json:"active"`
}

// ServerInterface lists the v1 operations.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	GetCatalog(c *fiber.Ctx) error
	PostCheckout(c *fiber.Ctx) error
	GetEntitlements(c *fiber.Ctx) error
	GetEntitlement(c *fiber.Ctx, key string) error
}

// RegisterHandlers mounts si on router. requirePrincipal guards the
// per-user endpoints; extra handlers run before PostCheckout (rate limiting).
func RegisterHandlers(router fiber.Router, si ServerInterface, requirePrincipal fiber.Handler, checkoutGuards ...fiber.Handler) {
	router.Get("/ping", si.GetPing)
	router.Get("/catalog", si.GetCatalog)

	checkout := append(append([]fiber.Handler{}, checkoutGuards...), si.PostCheckout)
	router.Post("/checkout", checkout...)

	router.Get("/entitlements", requirePrincipal, si.GetEntitlements)
	router.Get("/entitlements/:key", requirePrincipal, func(c *fiber.Ctx) error {
		return si.GetEntitlement(c, c.Params("key"))
	})
}
