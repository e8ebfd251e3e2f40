package billing

import (
	"strings"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
)

// LemonSqueezy event names handled by the webhook processor.
const (
	EventOrderCreated          = "order_created"
	EventOrderRefunded         = "order_refunded"
	EventSubscriptionCreated   = "subscription_created"
	EventSubscriptionUpdated   = "subscription_updated"
	EventSubscriptionCancelled = "subscription_cancelled"
	EventSubscriptionExpired   = "subscription_expired"
)

// MapSubscriptionStatus maps a provider subscription status to an
// entitlement status. Unrecognized values map to active.
func MapSubscriptionStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active", "on_trial", "past_due", "paused":
		return models.EntitlementStatusActive
	case "cancelled", "canceled":
		return models.EntitlementStatusCanceled
	case "expired", "unpaid":
		return models.EntitlementStatusExpired
	default:
		return models.EntitlementStatusActive
	}
}

func isKnownEvent(eventName string) bool {
	switch eventName {
	case EventOrderCreated, EventOrderRefunded,
		EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionCancelled, EventSubscriptionExpired:
		return true
	default:
		return false
	}
}
