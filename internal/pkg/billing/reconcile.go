package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/catalog"
)

// ResyncResult is the outcome of re-reading one subscription.
type ResyncResult struct {
	SubscriptionID string         `json:"subscriptionId"`
	OfferingKey    string         `json:"offeringKey"`
	Status         string         `json:"status"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	Grants         []GrantOutcome `json:"grants"`
}

// Reconciler repairs entitlement state from the provider's current view of a
// subscription, for deliveries that were lost or applied out of order.
type Reconciler struct {
	reader   SubscriptionReader
	repo     Repository
	catalog  *catalog.Catalog
	provider string
	notifier ChangeNotifier
	now      func() time.Time
}

func NewReconciler(reader SubscriptionReader, repo Repository, cat *catalog.Catalog) *Reconciler {
	return &Reconciler{
		reader:   reader,
		repo:     repo,
		catalog:  cat,
		provider: reader.Name(),
		now:      time.Now,
	}
}

func (r *Reconciler) WithNotifier(n ChangeNotifier) *Reconciler {
	r.notifier = n
	return r
}

// ResyncSubscription applies the subscription_updated transition using the
// provider's current subscription state.
func (r *Reconciler) ResyncSubscription(ctx context.Context, subscriptionID string) (*ResyncResult, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, validationError("subscription id is required")
	}

	sub, err := r.reader.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	offeringKey := sub.CustomData.String(CustomDataOfferingKey)
	resolved, ok := r.catalog.GetOfferingByKey(offeringKey)
	if !ok {
		resolved, ok = r.catalog.FindByProviderRef(r.provider, sub.VariantID)
	}
	if !ok {
		return nil, notFoundError("no offering for %s variant %q", r.provider, sub.VariantID)
	}

	userID, err := r.ownerOf(ctx, sub, subscriptionID)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	startsAt := now
	if sub.CreatedAt != nil {
		startsAt = sub.CreatedAt.UTC()
	}
	base := EntitlementUpsert{
		UserID:         userID,
		SourceID:       sub.ID,
		Status:         MapSubscriptionStatus(sub.Status),
		SourceProvider: r.provider,
		SourceType:     models.EntitlementSourceSubscription,
		StartsAt:       startsAt,
		ExpiresAt:      firstTime(sub.RenewsAt, sub.EndsAt),
		Meta: map[string]any{
			"event_name":      "resync",
			"offering_key":    resolved.Offering.Key,
			"provider_status": sub.Status,
			"variant_id":      sub.VariantID,
		},
	}
	if base.SourceID == "" {
		base.SourceID = subscriptionID
	}

	outcomes, err := applyUpserts(ctx, r.repo, base, resolved.Offering.EntitlementGrants)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"subscription_id": base.SourceID,
		"offering_key":    resolved.Offering.Key,
		"status":          base.Status,
	}).Info("Subscription resynced from provider")

	if r.notifier != nil && len(outcomes) > 0 {
		ev := ChangeEvent{
			EventKey:    "resync_" + base.SourceID + "_" + now.Format(time.RFC3339),
			EventName:   "resync",
			UserID:      userID,
			OfferingKey: resolved.Offering.Key,
			SourceID:    base.SourceID,
			SourceType:  base.SourceType,
			Grants:      outcomes,
			OccurredAt:  now,
		}
		if err := r.notifier.EntitlementsChanged(ctx, ev); err != nil {
			log.WithError(err).WithField("subscription_id", base.SourceID).Warn("Publishing entitlement change failed")
		}
	}

	return &ResyncResult{
		SubscriptionID: base.SourceID,
		OfferingKey:    resolved.Offering.Key,
		Status:         base.Status,
		ExpiresAt:      base.ExpiresAt,
		Grants:         outcomes,
	}, nil
}

// ownerOf identifies the subscription's user by email, or by the entitlements
// an earlier webhook granted for it when the provider returns no email.
func (r *Reconciler) ownerOf(ctx context.Context, sub *ProviderSubscription, subscriptionID string) (string, error) {
	if email := NormalizeEmail(sub.UserEmail); email != "" {
		return UserIDFromEmail(email), nil
	}
	sourceID := sub.ID
	if sourceID == "" {
		sourceID = subscriptionID
	}
	owner, err := r.repo.FindSourceOwner(ctx, r.provider, sourceID)
	if errors.Is(err, ErrNotFound) {
		return "", validationError("subscription %s has no customer email", subscriptionID)
	}
	return owner, err
}
