package models

// Billing provider constants used across billing-related models.
const (
	BillingProviderLemonSqueezy = "lemonsqueezy"
	BillingProviderStripe       = "stripe"
)

const (
	EntitlementStatusActive   = "active"
	EntitlementStatusCanceled = "canceled"
	EntitlementStatusExpired  = "expired"
)

const (
	EntitlementSourceOrder        = "order"
	EntitlementSourceSubscription = "subscription"
)
