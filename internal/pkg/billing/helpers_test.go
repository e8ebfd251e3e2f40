package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/catalog"
)

const testWebhookSecret = "whsec_test"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Entitlement{}, &models.WebhookMarker{}, &models.WebhookEvent{}))
	return db
}

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewRepository(db, 5*time.Second), db
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default(func(name string) string {
		switch name {
		case "LEMONSQUEEZY_STORE_ID":
			return "1000"
		case "LEMONSQUEEZY_VARIANT_WEBSITE_BASIC":
			return "2001"
		case "LEMONSQUEEZY_VARIANT_WEBSITE_PRO":
			return "2002"
		case "LEMONSQUEEZY_VARIANT_CARE_MONTHLY":
			return "2003"
		case "LEMONSQUEEZY_VARIANT_CUSTOM_PROJECT":
			return "2005"
		case "LEMONSQUEEZY_VARIANT_AUDIT_PASS":
			return "2006"
		case "STRIPE_PRICE_WEBSITE_BASIC":
			return "price_basic"
		case "STRIPE_PRICE_CARE_MONTHLY":
			return "price_monthly"
		}
		return ""
	})
	require.NoError(t, err)
	return c
}

// webhookBody builds a LemonSqueezy-shaped envelope.
func webhookBody(t *testing.T, eventName, id string, customData map[string]any, attrs map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"meta": map[string]any{
			"event_name":  eventName,
			"custom_data": customData,
		},
		"data": map[string]any{
			"id":         id,
			"type":       "orders",
			"attributes": attrs,
		},
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return b
}

func signedDelivery(t *testing.T, eventName, id string, customData map[string]any, attrs map[string]any) WebhookDelivery {
	t.Helper()
	body := webhookBody(t, eventName, id, customData, attrs)
	return WebhookDelivery{
		Body:      body,
		Signature: SignPayload(body, testWebhookSecret),
		EventName: eventName,
	}
}
