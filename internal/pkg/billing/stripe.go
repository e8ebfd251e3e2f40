package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/catalog"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/constants"
)

// StripeClient creates Stripe Checkout Sessions for catalog offerings.
type StripeClient struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripeClient builds a client with network retries disabled. backendURL
// overrides the Stripe API endpoint and is empty in production.
func NewStripeClient(secretKey, baseURL, backendURL string, timeout time.Duration) *StripeClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if backendURL != "" {
		cfg.URL = stripe.String(backendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)

	base := strings.TrimRight(baseURL, "/")
	return &StripeClient{
		api: client.New(strings.TrimSpace(secretKey), &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		successURL: base + constants.CheckoutSuccessRoute + "?session_id={CHECKOUT_SESSION_ID}",
		cancelURL:  base + constants.CheckoutCancelledRoute,
	}
}

func (c *StripeClient) Name() string {
	return models.BillingProviderStripe
}

// CreateCheckout opens a Checkout Session: payment mode for one-time
// offerings, subscription mode otherwise. Custom amounts use inline price
// data instead of the mapped price id.
func (c *StripeClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	priceID := strings.TrimSpace(req.Mapping.PriceID)
	if priceID == "" && req.CustomAmount == nil {
		return nil, configurationError("offering %q has no stripe price id", req.OfferingKey)
	}

	mode := stripe.CheckoutSessionModePayment
	if req.Kind == catalog.KindSubscription {
		mode = stripe.CheckoutSessionModeSubscription
	}

	item := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if req.CustomAmount != nil {
		currency := strings.ToLower(strings.TrimSpace(req.Currency))
		if currency == "" {
			currency = string(stripe.CurrencyUSD)
		}
		name := req.ProductName
		if name == "" {
			name = req.OfferingKey
		}
		item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(*req.CustomAmount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		}
	} else {
		item.Price = stripe.String(priceID)
	}

	successURL := c.successURL
	if req.RedirectURL != "" {
		successURL = req.RedirectURL
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(c.cancelURL),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{item},
	}
	params.Context = ctx
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	metadata := req.CustomData.Strings()
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	// Refund and subscription events carry the object's own metadata, not
	// the session's.
	if len(metadata) > 0 {
		if mode == stripe.CheckoutSessionModeSubscription {
			params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
		} else {
			params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}
		}
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// GetSubscription reads a subscription with its customer expanded, so the
// email and the checkout metadata come back in one call.
func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationError("subscription id is required")
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("customer")
	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return nil, notFoundError("stripe subscription %s", id)
		}
		return nil, mapStripeError(err)
	}

	out := &ProviderSubscription{
		ID:        sub.ID,
		Status:    stripeSubscriptionStatus(sub),
		VariantID: subscriptionPriceID(sub),
		CreatedAt: unixTime(sub.Created),
	}
	if sub.Customer != nil {
		out.UserEmail = strings.TrimSpace(sub.Customer.Email)
	}
	if out.Status == "cancelled" {
		out.EndsAt = subscriptionEnd(sub)
	} else {
		out.RenewsAt = unixTime(sub.CurrentPeriodEnd)
	}
	if cd, err := SanitizeCustomData(metadataMap(sub.Metadata)); err == nil {
		out.CustomData = cd
	}
	return out, nil
}

func mapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode != 0 {
		return &UpstreamError{
			Provider:   models.BillingProviderStripe,
			StatusCode: se.HTTPStatusCode,
			Body:       se.Msg,
		}
	}
	return fmt.Errorf("%w: stripe: %v", ErrUpstream, err)
}
