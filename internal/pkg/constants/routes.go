package constants

// Public route paths shared by the router, the binary and the providers
// that build redirect URLs.
const (
	HealthRoute              = "/healthz"
	MetricsRoute             = "/metrics"
	LemonSqueezyWebhookRoute = "/webhooks/lemonsqueezy"
	StripeWebhookRoute       = "/webhooks/stripe"
	AdminRoute               = "/admin"
	APIRoute                 = "/api"

	// Where hosted checkouts send the payer back to.
	CheckoutSuccessRoute   = "/checkout/success"
	CheckoutCancelledRoute = "/checkout/cancelled"
)
