package apiv1

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/controllers"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/billing"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/catalog"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/entitlements"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/usercontext"
)

// APIServer implements the ServerInterface
type APIServer struct {
	checkout *billing.CheckoutService
	catalog  *catalog.Catalog
	checker  *entitlements.Checker
	dev      bool
}

// NewAPIServer creates a new API server instance
func NewAPIServer(checkout *billing.CheckoutService, cat *catalog.Catalog, checker *entitlements.Checker, dev bool) *APIServer {
	return &APIServer{checkout: checkout, catalog: cat, checker: checker, dev: dev}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetCatalog lists products and offerings with their display fields.
// Provider identifiers are never serialized.
func (s *APIServer) GetCatalog(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(fiber.Map{"products": s.catalog.Products()})
}

// PostCheckout creates a hosted checkout for an offering.
func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(controllers.ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.checkout.CreateCheckout(c.UserContext(), billing.CheckoutInput{
		OfferingKey: req.OfferingKey,
		CustomData:  req.CustomData,
	})
	if err != nil {
		if errors.Is(err, billing.ErrConfiguration) || errors.Is(err, billing.ErrUpstream) {
			// Shown to the payer, so it stays generic.
			if !s.dev {
				return c.Status(fiber.StatusInternalServerError).JSON(controllers.ErrorResponse{
					Error: "checkout is temporarily unavailable, please try again later",
				})
			}
		}
		return controllers.RespondError(c, err, s.dev)
	}
	return c.JSON(CheckoutResponse{URL: result.URL, CheckoutID: result.CheckoutID})
}

// GetEntitlements lists the caller's entitlements with their access state.
func (s *APIServer) GetEntitlements(c *fiber.Ctx) error {
	p, _ := usercontext.GetPrincipal(c)
	summaries, err := s.checker.Summaries(c.UserContext(), p.UserID)
	if err != nil {
		return controllers.RespondError(c, err, s.dev)
	}
	return c.JSON(fiber.Map{"entitlements": summaries})
}

// GetEntitlement answers whether the caller holds one entitlement.
func (s *APIServer) GetEntitlement(c *fiber.Ctx, key string) error {
	p, _ := usercontext.GetPrincipal(c)
	active, err := s.checker.HasActiveEntitlement(c.UserContext(), p.UserID, key)
	if err != nil {
		return controllers.RespondError(c, err, s.dev)
	}
	return c.JSON(EntitlementStatus{EntitlementKey: key, Active: active})
}
