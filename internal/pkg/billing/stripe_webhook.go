package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/metrics"
)

// Stripe event types mapped onto lifecycle events. Everything else is
// acknowledged as an unknown event.
const (
	StripeEventCheckoutCompleted     = "checkout.session.completed"
	StripeEventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	StripeEventSubscriptionCreated   = "customer.subscription.created"
	StripeEventSubscriptionUpdated   = "customer.subscription.updated"
	StripeEventSubscriptionDeleted   = "customer.subscription.deleted"
	StripeEventChargeRefunded        = "charge.refunded"
)

// WithStripeSecret sets the signing secret of the Stripe webhook endpoint.
func (p *WebhookProcessor) WithStripeSecret(secret string) *WebhookProcessor {
	p.stripeSecret = strings.TrimSpace(secret)
	return p
}

// ProcessStripe verifies a Stripe delivery against its Stripe-Signature
// header and runs it through the same dedup, dispatch and finalize steps as
// LemonSqueezy deliveries.
func (p *WebhookProcessor) ProcessStripe(ctx context.Context, in WebhookDelivery) (*WebhookResult, error) {
	if strings.TrimSpace(in.Signature) == "" {
		metrics.WebhookRejected("missing_headers")
		return nil, validationError("missing Stripe-Signature header")
	}
	if p.stripeSecret == "" {
		return nil, configurationError("STRIPE_WEBHOOK_SECRET is not configured")
	}

	ev, err := webhook.ConstructEventWithOptions(in.Body, strings.TrimSpace(in.Signature), p.stripeSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isStripeSignatureError(err) {
			log.WithError(err).WithField("body_size", len(in.Body)).Warn("Rejected Stripe webhook with invalid signature")
			metrics.WebhookRejected("signature")
			return nil, ErrUnauthorized
		}
		metrics.WebhookRejected("malformed")
		return nil, validationError("malformed stripe event: %v", err)
	}

	d, err := stripeDelivery(ev, in, p.now().UTC())
	if err != nil {
		metrics.WebhookRejected("malformed")
		return nil, err
	}
	return p.handle(ctx, d)
}

func isStripeSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// stripeDelivery maps a verified event onto a delivery. The event key is
// derived from the event id so retries of one event dedupe, while distinct
// events about the same object do not.
func stripeDelivery(ev stripe.Event, in WebhookDelivery, receivedAt time.Time) (*delivery, error) {
	if ev.ID == "" || ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, validationError("stripe event has no id or data object")
	}

	d := &delivery{
		raw:             in,
		provider:        models.BillingProviderStripe,
		providerEvent:   string(ev.Type),
		receivedAt:      receivedAt,
		offeringFromRef: true,
	}

	var err error
	switch d.providerEvent {
	case StripeEventCheckoutCompleted, StripeEventAsyncPaymentSucceeded:
		err = d.fromCheckoutSession(ev.Data.Raw)
	case StripeEventSubscriptionCreated, StripeEventSubscriptionUpdated, StripeEventSubscriptionDeleted:
		err = d.fromSubscription(ev.Data.Raw)
	case StripeEventChargeRefunded:
		err = d.fromCharge(ev.Data.Raw)
	default:
		var obj struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		}
		err = json.Unmarshal(ev.Data.Raw, &obj)
		d.sourceID = obj.ID
		d.rawCustomData = metadataMap(obj.Metadata)
	}
	if err != nil {
		return nil, validationError("stripe %s object: %v", d.providerEvent, err)
	}
	if d.sourceID == "" {
		d.sourceID = ev.ID
	}
	d.eventKey = DeriveEventKey(d.providerEvent, ev.ID, in.Body)
	return d, nil
}

// fromCheckoutSession grants on a paid session. The source is the payment
// intent or subscription the session created, so later refunds and
// subscription events land on the same records.
func (d *delivery) fromCheckoutSession(raw json.RawMessage) error {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	d.rawCustomData = metadataMap(s.Metadata)
	d.createdAt = unixTime(s.Created)
	d.email = s.CustomerEmail
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		d.email = s.CustomerDetails.Email
	}
	if s.LineItems != nil && len(s.LineItems.Data) > 0 && s.LineItems.Data[0].Price != nil {
		d.variantID = s.LineItems.Data[0].Price.ID
	}

	switch s.Mode {
	case stripe.CheckoutSessionModeSubscription:
		if s.Subscription != nil {
			d.sourceID = s.Subscription.ID
		}
		if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid {
			d.eventName = EventSubscriptionCreated
		}
	default:
		if s.PaymentIntent != nil {
			d.sourceID = s.PaymentIntent.ID
		}
		// Delayed payment methods complete unpaid and grant on
		// async_payment_succeeded.
		if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid {
			d.eventName = EventOrderCreated
		}
	}
	if d.sourceID == "" {
		d.sourceID = s.ID
	}
	return nil
}

func (d *delivery) fromSubscription(raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return err
	}
	d.sourceID = sub.ID
	d.rawCustomData = metadataMap(sub.Metadata)
	d.createdAt = unixTime(sub.Created)
	d.variantID = subscriptionPriceID(&sub)
	d.status = stripeSubscriptionStatus(&sub)
	d.ownerFromSource = true
	if sub.Customer != nil {
		d.email = sub.Customer.Email
	}

	if d.providerEvent == StripeEventSubscriptionDeleted {
		d.eventName = EventSubscriptionExpired
		return nil
	}
	d.eventName = EventSubscriptionUpdated
	if d.status == "cancelled" {
		d.endsAt = subscriptionEnd(&sub)
	} else {
		d.renewsAt = unixTime(sub.CurrentPeriodEnd)
	}
	return nil
}

// fromCharge revokes on a full refund only. Partial refunds are acknowledged
// without changing access.
func (d *delivery) fromCharge(raw json.RawMessage) error {
	var ch stripe.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return err
	}
	d.sourceID = ch.ID
	if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
		d.sourceID = ch.PaymentIntent.ID
	}
	d.rawCustomData = metadataMap(ch.Metadata)
	d.createdAt = unixTime(ch.Created)
	d.ownerFromSource = true
	d.email = ch.ReceiptEmail
	if ch.BillingDetails != nil && ch.BillingDetails.Email != "" {
		d.email = ch.BillingDetails.Email
	}
	if ch.Refunded {
		d.eventName = EventOrderRefunded
	}
	return nil
}

// stripeSubscriptionStatus translates a Stripe subscription into the status
// vocabulary MapSubscriptionStatus understands. A subscription scheduled to
// cancel keeps access until its period ends, like a cancelled one.
func stripeSubscriptionStatus(sub *stripe.Subscription) string {
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		if sub.CancelAtPeriodEnd || sub.CancelAt != 0 {
			return "cancelled"
		}
		if sub.Status == stripe.SubscriptionStatusTrialing {
			return "on_trial"
		}
		return "active"
	case stripe.SubscriptionStatusPastDue:
		return "past_due"
	case stripe.SubscriptionStatusPaused:
		return "paused"
	case stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return "unpaid"
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return "expired"
	}
	return string(sub.Status)
}

func subscriptionEnd(sub *stripe.Subscription) *time.Time {
	if sub.CancelAt != 0 {
		return unixTime(sub.CancelAt)
	}
	return unixTime(sub.CurrentPeriodEnd)
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func metadataMap(md map[string]string) map[string]any {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
