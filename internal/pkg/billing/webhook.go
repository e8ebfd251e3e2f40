package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/catalog"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/metrics"
)

type webhookEnvelope struct {
	Meta struct {
		EventName  string         `json:"event_name"`
		CustomData map[string]any `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         flexibleID        `json:"id"`
		Type       string            `json:"type"`
		Attributes webhookAttributes `json:"attributes"`
	} `json:"data"`
}

type webhookAttributes struct {
	UserEmail      string     `json:"user_email"`
	Status         string     `json:"status"`
	VariantID      flexibleID `json:"variant_id"`
	CreatedAt      *time.Time `json:"created_at"`
	RenewsAt       *time.Time `json:"renews_at"`
	EndsAt         *time.Time `json:"ends_at"`
	FirstOrderItem *struct {
		VariantID flexibleID `json:"variant_id"`
	} `json:"first_order_item"`
}

// WebhookProcessor verifies, deduplicates and applies provider webhooks.
// LemonSqueezy and Stripe deliveries are parsed into the same lifecycle
// events and share one pipeline.
type WebhookProcessor struct {
	secret       string
	stripeSecret string
	repo         Repository
	catalog      *catalog.Catalog
	archiver     PayloadArchiver
	notifier     ChangeNotifier
	now          func() time.Time
}

func NewWebhookProcessor(secret string, repo Repository, cat *catalog.Catalog) *WebhookProcessor {
	return &WebhookProcessor{
		secret:  secret,
		repo:    repo,
		catalog: cat,
		now:     time.Now,
	}
}

// WithArchiver stores every accepted raw payload through a.
func (p *WebhookProcessor) WithArchiver(a PayloadArchiver) *WebhookProcessor {
	p.archiver = a
	return p
}

// WithNotifier reports applied entitlement changes to n.
func (p *WebhookProcessor) WithNotifier(n ChangeNotifier) *WebhookProcessor {
	p.notifier = n
	return p
}

// WithClock replaces the clock, for tests.
func (p *WebhookProcessor) WithClock(now func() time.Time) *WebhookProcessor {
	p.now = now
	return p
}

// delivery is the provider-neutral state of one webhook while it is being
// handled.
type delivery struct {
	raw      WebhookDelivery
	provider string
	// providerEvent is the event type as the provider names it; eventName is
	// the lifecycle event it maps to, empty when there is none.
	providerEvent string
	eventName     string
	eventKey      string
	sourceID      string
	rawCustomData map[string]any
	customData    CustomData
	offeringKey   string
	variantID     string
	email         string
	status        string
	createdAt     *time.Time
	renewsAt      *time.Time
	endsAt        *time.Time
	receivedAt    time.Time

	// ownerFromSource resolves the user from entitlements already granted
	// by the same source before falling back to the email.
	ownerFromSource bool
	// offeringFromRef resolves a missing offering key from variantID.
	offeringFromRef bool
}

// Process runs one LemonSqueezy delivery to completion. The signature is
// checked before the body is parsed.
func (p *WebhookProcessor) Process(ctx context.Context, in WebhookDelivery) (*WebhookResult, error) {
	eventName := strings.TrimSpace(in.EventName)
	if strings.TrimSpace(in.Signature) == "" || eventName == "" {
		metrics.WebhookRejected("missing_headers")
		return nil, validationError("missing signature or event name header")
	}
	if !VerifyWebhookSignature(in.Body, in.Signature, p.secret) {
		log.WithFields(log.Fields{
			"event_name": eventName,
			"body_size":  len(in.Body),
		}).Warn("Rejected webhook with invalid signature")
		metrics.WebhookRejected("signature")
		return nil, ErrUnauthorized
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(in.Body, &envelope); err != nil {
		metrics.WebhookRejected("malformed")
		return nil, validationError("malformed webhook payload: %v", err)
	}
	sourceID := envelope.Data.ID.String()
	if sourceID == "" {
		metrics.WebhookRejected("malformed")
		return nil, validationError("webhook payload has no data.id")
	}
	if metaName := strings.TrimSpace(envelope.Meta.EventName); metaName != "" && metaName != eventName {
		log.WithFields(log.Fields{
			"header_event": eventName,
			"meta_event":   metaName,
		}).Warn("Webhook event name header differs from payload meta")
	}

	attrs := envelope.Data.Attributes
	d := &delivery{
		raw:           in,
		provider:      models.BillingProviderLemonSqueezy,
		providerEvent: eventName,
		eventName:     eventName,
		eventKey:      DeriveEventKey(eventName, sourceID, in.Body),
		sourceID:      sourceID,
		rawCustomData: envelope.Meta.CustomData,
		variantID:     variantOf(attrs),
		email:         attrs.UserEmail,
		status:        strings.TrimSpace(attrs.Status),
		createdAt:     attrs.CreatedAt,
		renewsAt:      attrs.RenewsAt,
		endsAt:        attrs.EndsAt,
		receivedAt:    p.now().UTC(),
	}
	return p.handle(ctx, d)
}

// handle deduplicates and applies a verified delivery. The processed marker
// is only written once every handler succeeded, so a failed delivery is
// retried in full by the provider.
func (p *WebhookProcessor) handle(ctx context.Context, d *delivery) (*WebhookResult, error) {
	logger := log.WithFields(log.Fields{
		"provider":   d.provider,
		"event_name": d.providerEvent,
		"event_key":  d.eventKey,
		"source_id":  d.sourceID,
	})

	processed, err := p.repo.IsWebhookProcessed(ctx, d.eventKey)
	if err != nil {
		logger.WithError(err).Error("Webhook dedup lookup failed")
		return nil, err
	}
	if processed {
		logger.Info("Webhook already processed")
		metrics.WebhookHandled(d.providerEvent, WebhookStatusAlreadyProcessed)
		return &WebhookResult{Status: WebhookStatusAlreadyProcessed, EventKey: d.eventKey}, nil
	}

	d.offeringKey = offeringKeyFrom(d.rawCustomData)
	if d.offeringKey == "" && d.offeringFromRef && d.variantID != "" {
		if r, ok := p.catalog.FindByProviderRef(d.provider, d.variantID); ok {
			d.offeringKey = r.Offering.Key
		}
	}
	if cd, err := SanitizeCustomData(d.rawCustomData); err != nil {
		logger.WithError(err).Warn("Webhook custom data dropped")
	} else {
		d.customData = cd
	}

	if d.offeringKey == "" {
		logger.Info("Webhook carries no offering key")
		if err := p.finalize(ctx, d, ReasonNoOfferingKey, nil); err != nil {
			return nil, err
		}
		metrics.WebhookHandled(d.providerEvent, WebhookStatusNoOfferingKey)
		return &WebhookResult{Status: WebhookStatusNoOfferingKey, EventKey: d.eventKey}, nil
	}

	grants := p.catalog.GetEntitlementsForOffering(d.offeringKey)
	if _, known := p.catalog.GetOfferingByKey(d.offeringKey); !known {
		logger.WithField("offering_key", d.offeringKey).Warn("Webhook references an unknown offering, granting nothing")
	}

	reason := ""
	userID := ""
	var outcomes []GrantOutcome
	switch {
	case !isKnownEvent(d.eventName):
		logger.Info("Ignoring unhandled webhook event type")
		reason = ReasonUnknownEvent
	default:
		userID, err = p.resolveUser(ctx, d)
		if err != nil {
			logger.WithError(err).Error("Resolving the webhook's user failed, leaving it unmarked for retry")
			metrics.WebhookHandled(d.providerEvent, "error")
			p.audit(ctx, d, "error")
			return nil, err
		}
		if userID == "" {
			logger.Warn("Webhook has no payer email, no entitlement changed")
			reason = ReasonNoUserEmail
			break
		}
		outcomes, err = p.dispatch(ctx, d, userID, grants)
		if err != nil {
			logger.WithError(err).Error("Webhook handling failed, leaving it unmarked for retry")
			metrics.WebhookHandled(d.providerEvent, "error")
			p.audit(ctx, d, "error")
			return nil, err
		}
	}

	if err := p.finalize(ctx, d, reason, outcomes); err != nil {
		return nil, err
	}
	p.notify(ctx, d, userID, outcomes)
	metrics.WebhookHandled(d.providerEvent, WebhookStatusSuccess)
	return &WebhookResult{Status: WebhookStatusSuccess, EventKey: d.eventKey, Grants: outcomes}, nil
}

// resolveUser returns the user a delivery applies to, or "" when it cannot
// be identified.
func (p *WebhookProcessor) resolveUser(ctx context.Context, d *delivery) (string, error) {
	if d.ownerFromSource {
		owner, err := p.repo.FindSourceOwner(ctx, d.provider, d.sourceID)
		switch {
		case err == nil:
			return owner, nil
		case !errors.Is(err, ErrNotFound):
			return "", err
		}
	}
	email := NormalizeEmail(d.email)
	if email == "" {
		email = NormalizeEmail(d.customData.String(CustomDataEmail))
	}
	if email == "" {
		return "", nil
	}
	return UserIDFromEmail(email), nil
}

func offeringKeyFrom(customData map[string]any) string {
	for _, k := range []string{CustomDataOfferingKey, "offeringKey"} {
		if s, ok := customData[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// dispatch applies the event's transition to every granted entitlement.
// Each grant is attempted even when an earlier one failed; any hard failure
// is returned after the loop.
func (p *WebhookProcessor) dispatch(ctx context.Context, d *delivery, userID string, grants []string) ([]GrantOutcome, error) {
	startsAt := d.receivedAt
	if d.createdAt != nil {
		startsAt = d.createdAt.UTC()
	}

	base := EntitlementUpsert{
		UserID:         userID,
		SourceID:       d.sourceID,
		SourceProvider: d.provider,
		StartsAt:       startsAt,
		Meta:           p.meta(d),
	}

	switch d.eventName {
	case EventOrderCreated:
		base.Status = models.EntitlementStatusActive
		base.SourceType = models.EntitlementSourceOrder
		if r, ok := p.catalog.GetOfferingByKey(d.offeringKey); ok {
			if dur := r.Offering.Duration(); dur != nil {
				exp := startsAt.Add(*dur)
				base.ExpiresAt = &exp
			}
		}
		return applyUpserts(ctx, p.repo, base, grants)
	case EventOrderRefunded, EventSubscriptionExpired:
		return applyRevokes(ctx, p.repo, userID, d.sourceID, grants)
	case EventSubscriptionCreated:
		base.Status = models.EntitlementStatusActive
		base.SourceType = models.EntitlementSourceSubscription
		base.ExpiresAt = d.renewsAt
		return applyUpserts(ctx, p.repo, base, grants)
	case EventSubscriptionUpdated:
		base.Status = MapSubscriptionStatus(d.status)
		base.SourceType = models.EntitlementSourceSubscription
		base.ExpiresAt = firstTime(d.renewsAt, d.endsAt)
		return applyUpserts(ctx, p.repo, base, grants)
	case EventSubscriptionCancelled:
		base.Status = models.EntitlementStatusCanceled
		base.SourceType = models.EntitlementSourceSubscription
		base.ExpiresAt = d.endsAt
		return applyUpserts(ctx, p.repo, base, grants)
	}
	return nil, nil
}

func (p *WebhookProcessor) meta(d *delivery) map[string]any {
	m := map[string]any{
		"event_name":   d.providerEvent,
		"event_key":    d.eventKey,
		"offering_key": d.offeringKey,
	}
	if d.eventName != d.providerEvent {
		m["lifecycle_event"] = d.eventName
	}
	if d.status != "" {
		m["provider_status"] = d.status
	}
	if d.variantID != "" {
		m["variant_id"] = d.variantID
	}
	if len(d.customData) > 0 {
		m["custom_data"] = d.customData
	}
	return m
}

func variantOf(a webhookAttributes) string {
	if v := a.VariantID.String(); v != "" {
		return v
	}
	if a.FirstOrderItem != nil {
		return a.FirstOrderItem.VariantID.String()
	}
	return ""
}

func firstTime(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}

func applyUpserts(ctx context.Context, repo Repository, base EntitlementUpsert, grants []string) ([]GrantOutcome, error) {
	outcomes := make([]GrantOutcome, 0, len(grants))
	var errs []error
	for _, key := range grants {
		in := base
		in.EntitlementKey = key
		out := GrantOutcome{EntitlementKey: key, Action: GrantActionUpsert, Status: in.Status}
		if _, err := repo.UpsertEntitlement(ctx, in); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"entitlement_key": key,
				"source_id":       base.SourceID,
			}).Error("Entitlement upsert failed")
			out.Result, out.Err, out.Reason = GrantFailed, err, err.Error()
			errs = append(errs, err)
		} else {
			out.Result = GrantApplied
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, errors.Join(errs...)
}

func applyRevokes(ctx context.Context, repo Repository, userID, sourceID string, grants []string) ([]GrantOutcome, error) {
	outcomes := make([]GrantOutcome, 0, len(grants))
	var errs []error
	for _, key := range grants {
		out := GrantOutcome{EntitlementKey: key, Action: GrantActionRevoke, Status: models.EntitlementStatusExpired}
		err := repo.RevokeEntitlement(ctx, userID, key, sourceID)
		switch {
		case err == nil:
			out.Result = GrantApplied
		case errors.Is(err, ErrNotFound):
			log.WithFields(log.Fields{
				"entitlement_key": key,
				"source_id":       sourceID,
			}).Warn("Nothing to revoke for entitlement")
			out.Result, out.Err, out.Reason = GrantSoftFailed, err, "not_found"
		default:
			log.WithError(err).WithFields(log.Fields{
				"entitlement_key": key,
				"source_id":       sourceID,
			}).Error("Entitlement revoke failed")
			out.Result, out.Err, out.Reason = GrantFailed, err, err.Error()
			errs = append(errs, err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, errors.Join(errs...)
}

// finalize writes the processed marker, then the best-effort audit record
// and archive copy.
func (p *WebhookProcessor) finalize(ctx context.Context, d *delivery, reason string, outcomes []GrantOutcome) error {
	markerCtx := map[string]any{
		"provider":     d.provider,
		"event_name":   d.providerEvent,
		"source_id":    d.sourceID,
		"processed_at": p.now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		markerCtx["reason"] = reason
	}
	if d.offeringKey != "" {
		markerCtx["offering_key"] = d.offeringKey
	}
	if len(outcomes) > 0 {
		markerCtx["grants"] = len(outcomes)
	}
	if err := p.repo.MarkWebhookProcessed(ctx, d.eventKey, markerCtx); err != nil {
		log.WithError(err).WithField("event_key", d.eventKey).Error("Writing webhook marker failed")
		return err
	}

	outcome := WebhookStatusSuccess
	if reason != "" {
		outcome = reason
	}
	p.audit(ctx, d, outcome)

	if p.archiver != nil {
		if err := p.archiver.ArchivePayload(ctx, d.eventKey, d.raw.Body); err != nil {
			log.WithError(err).WithField("event_key", d.eventKey).Warn("Archiving webhook payload failed")
		}
	}
	return nil
}

func (p *WebhookProcessor) audit(ctx context.Context, d *delivery, outcome string) {
	processedAt := p.now().UTC()
	event := &models.WebhookEvent{
		Provider:    d.provider,
		EventType:   d.providerEvent,
		EventKey:    d.eventKey,
		PayloadJSON: string(d.raw.Body),
		Signature:   strings.TrimSpace(d.raw.Signature),
		Outcome:     outcome,
		ReceivedAt:  d.receivedAt,
		ProcessedAt: &processedAt,
	}
	if err := p.repo.LogWebhookEvent(ctx, event); err != nil {
		log.WithError(err).WithField("event_key", d.eventKey).Warn("Writing webhook audit log failed")
	}
}

func (p *WebhookProcessor) notify(ctx context.Context, d *delivery, userID string, outcomes []GrantOutcome) {
	if p.notifier == nil || len(outcomes) == 0 {
		return
	}
	sourceType := models.EntitlementSourceSubscription
	if strings.HasPrefix(d.eventName, "order_") {
		sourceType = models.EntitlementSourceOrder
	}
	ev := ChangeEvent{
		EventKey:    d.eventKey,
		EventName:   d.eventName,
		UserID:      userID,
		OfferingKey: d.offeringKey,
		SourceID:    d.sourceID,
		SourceType:  sourceType,
		Grants:      outcomes,
		OccurredAt:  d.receivedAt,
	}
	if err := p.notifier.EntitlementsChanged(ctx, ev); err != nil {
		log.WithError(err).WithField("event_key", d.eventKey).Warn("Publishing entitlement change failed")
	}
}
