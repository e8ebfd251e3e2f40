package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/config"
)

var client *redis.Client

// SetupCache connects the shared Redis client. An unreachable server is
// logged, not fatal: every cache user falls back to the database.
func SetupCache(cfg config.Cache) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.WithError(err).WithField("addr", client.Options().Addr).Warn("Could not connect to Redis cache")
	} else {
		log.WithField("reply", pong).Info("Connected to Redis cache")
	}
	return client
}

// GetClient returns the shared client, or nil when SetupCache was never
// called.
func GetClient() *redis.Client {
	return client
}

// Close releases the shared client.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
