package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const markerCachePrefix = "webhook:processed:"

// cachedRepository puts a Redis read-through cache in front of the webhook
// marker lookups. The database stays authoritative: Redis errors are logged
// and the call falls through.
type cachedRepository struct {
	Repository
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedRepository wraps repo with a Redis marker cache. A nil client
// returns repo unchanged.
func NewCachedRepository(repo Repository, rdb *redis.Client, ttl time.Duration) Repository {
	if rdb == nil {
		return repo
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &cachedRepository{Repository: repo, rdb: rdb, ttl: ttl}
}

func (c *cachedRepository) IsWebhookProcessed(ctx context.Context, eventKey string) (bool, error) {
	n, err := c.rdb.Exists(ctx, markerCachePrefix+eventKey).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		log.WithError(err).WithField("event_key", eventKey).Warn("Marker cache lookup failed")
	}

	processed, err := c.Repository.IsWebhookProcessed(ctx, eventKey)
	if err != nil {
		return false, err
	}
	if processed {
		c.remember(ctx, eventKey)
	}
	return processed, nil
}

func (c *cachedRepository) MarkWebhookProcessed(ctx context.Context, eventKey string, markerContext map[string]any) error {
	if err := c.Repository.MarkWebhookProcessed(ctx, eventKey, markerContext); err != nil {
		return err
	}
	c.remember(ctx, eventKey)
	return nil
}

func (c *cachedRepository) remember(ctx context.Context, eventKey string) {
	if err := c.rdb.Set(ctx, markerCachePrefix+eventKey, 1, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("event_key", eventKey).Warn("Marker cache write failed")
	}
}
