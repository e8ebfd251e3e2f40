package billing

import (
	"context"
	"time"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/catalog"
)

// CheckoutRequest is the provider-neutral description of a hosted checkout.
type CheckoutRequest struct {
	OfferingKey  string
	ProductKey   string
	ProductName  string
	Kind         catalog.OfferingKind
	Mapping      catalog.ProviderMapping
	Email        string
	Name         string
	CustomAmount *int64
	Currency     string
	CustomData   CustomData
	RedirectURL  string
}

// CheckoutSession is what the provider hands back: where to send the payer.
type CheckoutSession struct {
	ID  string
	URL string
}

// ProviderSubscription is the provider's current view of a subscription.
type ProviderSubscription struct {
	ID         string
	Status     string
	UserEmail  string
	VariantID  string
	CreatedAt  *time.Time
	RenewsAt   *time.Time
	EndsAt     *time.Time
	CustomData CustomData
}

// Provider creates hosted checkouts.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// SubscriptionReader reads subscription state back from the provider.
type SubscriptionReader interface {
	Name() string
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
}

// WebhookDelivery is one webhook request as received: the raw body plus the
// signature and event name headers.
type WebhookDelivery struct {
	Body      []byte
	Signature string
	EventName string
}

// Webhook result statuses.
const (
	WebhookStatusSuccess          = "success"
	WebhookStatusAlreadyProcessed = "already_processed"
	WebhookStatusNoOfferingKey    = "no_offering_key"
)

// Marker reasons recorded for deliveries that mutate nothing.
const (
	ReasonNoOfferingKey = "no_offering_key"
	ReasonNoUserEmail   = "no_user_email"
	ReasonUnknownEvent  = "unknown_event"
)

// WebhookResult is the acknowledged outcome of a delivery.
type WebhookResult struct {
	Status   string         `json:"status"`
	EventKey string         `json:"eventKey,omitempty"`
	Grants   []GrantOutcome `json:"grants,omitempty"`
}

type GrantAction string

const (
	GrantActionUpsert GrantAction = "upsert"
	GrantActionRevoke GrantAction = "revoke"
)

// GrantResult classifies how a single entitlement mutation ended.
type GrantResult string

const (
	GrantApplied GrantResult = "applied"
	// GrantSoftFailed is an expected miss, such as revoking a record that was
	// never created. It is logged and does not fail the delivery.
	GrantSoftFailed GrantResult = "soft_failed"
	GrantFailed     GrantResult = "failed"
)

// GrantOutcome reports one entitlement key's mutation.
type GrantOutcome struct {
	EntitlementKey string      `json:"entitlementKey"`
	Action         GrantAction `json:"action"`
	Result         GrantResult `json:"result"`
	Status         string      `json:"status,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Err            error       `json:"-"`
}

// ChangeEvent describes entitlement mutations caused by one delivery or
// resync.
type ChangeEvent struct {
	EventKey    string         `json:"event_key"`
	EventName   string         `json:"event_name"`
	UserID      string         `json:"user_id"`
	OfferingKey string         `json:"offering_key"`
	SourceID    string         `json:"source_id"`
	SourceType  string         `json:"source_type"`
	Grants      []GrantOutcome `json:"grants"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// ChangeNotifier is told about applied entitlement changes. Failures are
// logged by the caller and never fail the delivery.
type ChangeNotifier interface {
	EntitlementsChanged(ctx context.Context, ev ChangeEvent) error
}

// PayloadArchiver stores raw webhook payloads for later inspection.
type PayloadArchiver interface {
	ArchivePayload(ctx context.Context, eventKey string, payload []byte) error
}
