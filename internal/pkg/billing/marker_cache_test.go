package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
)

func TestNewCachedRepositoryWithoutRedis(t *testing.T) {
	repo, _ := newTestRepo(t)
	assert.Same(t, repo, NewCachedRepository(repo, nil, time.Minute))
}

func TestCachedRepositoryMarkers(t *testing.T) {
	rdb := newIsolatedRedisClient(t)
	repo, db := newTestRepo(t)
	cached := NewCachedRepository(repo, rdb, time.Minute)
	ctx := context.Background()

	processed, err := cached.IsWebhookProcessed(ctx, "order_created_ORD1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, cached.MarkWebhookProcessed(ctx, "order_created_ORD1", nil))
	n, err := rdb.Exists(ctx, markerCachePrefix+"order_created_ORD1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Redis answers even once the database row is gone.
	require.NoError(t, db.Where("event_key = ?", "order_created_ORD1").Delete(&models.WebhookMarker{}).Error)
	processed, err = cached.IsWebhookProcessed(ctx, "order_created_ORD1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestCachedRepositoryWarmsFromDatabase(t *testing.T) {
	rdb := newIsolatedRedisClient(t)
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.MarkWebhookProcessed(ctx, "order_created_ORD2", map[string]any{"reason": "no_offering_key"}))

	cached := NewCachedRepository(repo, rdb, time.Minute)
	processed, err := cached.IsWebhookProcessed(ctx, "order_created_ORD2")
	require.NoError(t, err)
	assert.True(t, processed)

	ttl, err := rdb.TTL(ctx, markerCachePrefix+"order_created_ORD2").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
