package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
)

func TestUpsertEntitlementUpdatesInPlace(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	renews := start.Add(30 * 24 * time.Hour)
	first, err := repo.UpsertEntitlement(ctx, EntitlementUpsert{
		UserID:         "u1",
		EntitlementKey: "maintenance_access",
		SourceID:       "sub_1",
		Status:         models.EntitlementStatusActive,
		SourceProvider: models.BillingProviderLemonSqueezy,
		SourceType:     models.EntitlementSourceSubscription,
		StartsAt:       start,
		ExpiresAt:      &renews,
		Meta:           map[string]any{"event_name": "subscription_created"},
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	assert.JSONEq(t, `{"event_name":"subscription_created"}`, first.MetaJSON)

	ends := renews.Add(24 * time.Hour)
	second, err := repo.UpsertEntitlement(ctx, EntitlementUpsert{
		UserID:         "u1",
		EntitlementKey: "maintenance_access",
		SourceID:       "sub_1",
		Status:         models.EntitlementStatusCanceled,
		SourceProvider: models.BillingProviderLemonSqueezy,
		SourceType:     models.EntitlementSourceSubscription,
		StartsAt:       start.Add(time.Hour),
		ExpiresAt:      &ends,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.EntitlementStatusCanceled, second.Status)
	require.NotNil(t, second.ExpiresAt)
	assert.True(t, second.ExpiresAt.Equal(ends))
	assert.True(t, second.StartsAt.Equal(start), "starts_at keeps its first value")

	var count int64
	require.NoError(t, db.Model(&models.Entitlement{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertEntitlementDistinctSources(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	for _, src := range []string{"ORD1", "ORD2"} {
		_, err := repo.UpsertEntitlement(ctx, EntitlementUpsert{
			UserID:         "u1",
			EntitlementKey: "website_basic_access",
			SourceID:       src,
			Status:         models.EntitlementStatusActive,
			SourceProvider: models.BillingProviderLemonSqueezy,
			SourceType:     models.EntitlementSourceOrder,
			StartsAt:       time.Now(),
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.Entitlement{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	rows, err := repo.ListEntitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUpsertEntitlementRequiresIdentity(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.UpsertEntitlement(context.Background(), EntitlementUpsert{EntitlementKey: "x", SourceID: "y"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRevokeEntitlement(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	err := repo.RevokeEntitlement(ctx, "u1", "website_basic_access", "ORD1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.UpsertEntitlement(ctx, EntitlementUpsert{
		UserID:         "u1",
		EntitlementKey: "website_basic_access",
		SourceID:       "ORD1",
		Status:         models.EntitlementStatusActive,
		SourceProvider: models.BillingProviderLemonSqueezy,
		SourceType:     models.EntitlementSourceOrder,
		StartsAt:       time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, repo.RevokeEntitlement(ctx, "u1", "website_basic_access", "ORD1"))

	active, err := repo.HasActiveEntitlement(ctx, "u1", "website_basic_access", time.Now())
	require.NoError(t, err)
	assert.False(t, active)

	rows, err := repo.ListEntitlements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1, "revoked records are kept")
	assert.Equal(t, models.EntitlementStatusExpired, rows[0].Status)
}

func TestHasActiveEntitlement(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(72 * time.Hour)

	seed := []EntitlementUpsert{
		{EntitlementKey: "lifetime", SourceID: "ORD1", Status: models.EntitlementStatusActive},
		{EntitlementKey: "lapsed", SourceID: "ORD2", Status: models.EntitlementStatusActive, ExpiresAt: &past},
		{EntitlementKey: "grace", SourceID: "sub_1", Status: models.EntitlementStatusCanceled, ExpiresAt: &future},
		{EntitlementKey: "gone", SourceID: "sub_2", Status: models.EntitlementStatusExpired},
	}
	for _, in := range seed {
		in.UserID = "u1"
		in.SourceProvider = models.BillingProviderLemonSqueezy
		in.SourceType = models.EntitlementSourceOrder
		in.StartsAt = now.Add(-24 * time.Hour)
		_, err := repo.UpsertEntitlement(ctx, in)
		require.NoError(t, err)
	}

	tests := map[string]bool{
		"lifetime": true,
		"lapsed":   false,
		"grace":    true,
		"gone":     false,
		"missing":  false,
	}
	for key, want := range tests {
		got, err := repo.HasActiveEntitlement(ctx, "u1", key, now)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}

	got, err := repo.HasActiveEntitlement(ctx, "u1", "grace", future.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, got, "grace period ends at expiry")
}

func TestWebhookMarkers(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	processed, err := repo.IsWebhookProcessed(ctx, "order_created_ORD1_abcd1234")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, repo.MarkWebhookProcessed(ctx, "order_created_ORD1_abcd1234", map[string]any{"reason": "no_offering_key"}))
	require.NoError(t, repo.MarkWebhookProcessed(ctx, "order_created_ORD1_abcd1234", nil), "second mark is a no-op")

	processed, err = repo.IsWebhookProcessed(ctx, "order_created_ORD1_abcd1234")
	require.NoError(t, err)
	assert.True(t, processed)

	var marker models.WebhookMarker
	require.NoError(t, db.First(&marker).Error)
	assert.JSONEq(t, `{"reason":"no_offering_key"}`, marker.ContextJSON)

	assert.ErrorIs(t, repo.MarkWebhookProcessed(ctx, " ", nil), ErrValidation)
}

func TestLogWebhookEvent(t *testing.T) {
	repo, db := newTestRepo(t)

	ev := &models.WebhookEvent{
		Provider:    models.BillingProviderLemonSqueezy,
		EventType:   "order_created",
		EventKey:    "order_created_ORD1_abcd1234",
		PayloadJSON: `{}`,
		ReceivedAt:  time.Now(),
	}
	require.NoError(t, repo.LogWebhookEvent(context.Background(), ev))
	assert.Len(t, ev.ID, 36)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryTimeoutIsStorageError(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.IsWebhookProcessed(ctx, "k")
	assert.ErrorIs(t, err, ErrStorage)
}

func TestUpsertEntitlementFarFutureExpiry(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)
	row, err := repo.UpsertEntitlement(ctx, EntitlementUpsert{
		UserID:         "u1",
		EntitlementKey: "site_audit_access",
		SourceID:       "ord_far",
		Status:         models.EntitlementStatusActive,
		SourceProvider: models.BillingProviderLemonSqueezy,
		SourceType:     models.EntitlementSourceOrder,
		StartsAt:       start,
		ExpiresAt:      &expires,
	})
	require.NoError(t, err)
	require.NotNil(t, row.ExpiresAt)
	assert.True(t, row.ExpiresAt.Equal(expires))

	ok, err := repo.HasActiveEntitlement(ctx, "u1", "site_audit_access", time.Date(2050, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFindSourceOwner(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertEntitlement(ctx, EntitlementUpsert{
		UserID:         "u42",
		EntitlementKey: "maintenance_access",
		SourceID:       "sub_X",
		Status:         models.EntitlementStatusActive,
		SourceProvider: models.BillingProviderStripe,
		SourceType:     models.EntitlementSourceSubscription,
		StartsAt:       time.Now(),
	})
	require.NoError(t, err)

	owner, err := repo.FindSourceOwner(ctx, models.BillingProviderStripe, "sub_X")
	require.NoError(t, err)
	assert.Equal(t, "u42", owner)

	_, err = repo.FindSourceOwner(ctx, models.BillingProviderLemonSqueezy, "sub_X")
	assert.ErrorIs(t, err, ErrNotFound)
}
