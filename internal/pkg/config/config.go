// Package config holds the typed process configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
)

type App struct {
	Env      string `env:"APP_ENV" envDefault:"prod"`
	Host     string `env:"APP_HOST" envDefault:"localhost"`
	Port     string `env:"APP_PORT" envDefault:"4000"`
	BaseURL  string `env:"APP_BASE_URL" envDefault:"http://localhost:4000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type Database struct {
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Host     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port     string `env:"DB_PORT" envDefault:"3306"`
	Name     string `env:"DB_NAME"`
}

type Cache struct {
	Host     string `env:"CACHE_HOST"`
	Port     string `env:"CACHE_PORT" envDefault:"6379"`
	Password string `env:"CACHE_PASSWORD"`
}

// Enabled reports whether a Redis endpoint is configured.
func (c Cache) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type Billing struct {
	Provider             string        `env:"BILLING_PROVIDER" envDefault:"lemonsqueezy"`
	LemonSqueezyAPIKey   string        `env:"LEMONSQUEEZY_API_KEY"`
	LemonSqueezySecret   string        `env:"LEMONSQUEEZY_WEBHOOK_SECRET"`
	LemonSqueezyStoreID  string        `env:"LEMONSQUEEZY_STORE_ID"`
	LemonSqueezyBaseURL  string        `env:"LEMONSQUEEZY_API_BASE_URL" envDefault:"https://api.lemonsqueezy.com/v1"`
	StripeSecretKey      string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string        `env:"STRIPE_WEBHOOK_SECRET"`
	ProviderTimeout      time.Duration `env:"BILLING_PROVIDER_TIMEOUT" envDefault:"10s"`
	StorageTimeout       time.Duration `env:"BILLING_STORAGE_TIMEOUT" envDefault:"10s"`
	CatalogFile          string        `env:"CATALOG_FILE"`
	MarkerCacheTTL       time.Duration `env:"WEBHOOK_MARKER_CACHE_TTL" envDefault:"720h"`
	CheckoutRateLimitMax int           `env:"CHECKOUT_RATE_LIMIT_MAX" envDefault:"10"`
}

type Kafka struct {
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	EntitlementTopic string `env:"KAFKA_ENTITLEMENT_TOPIC" envDefault:"entitlement_changes"`
}

type S3Archive struct {
	Enabled         bool   `env:"S3_ARCHIVE_ENABLED" envDefault:"false"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Region          string `env:"S3_REGION" envDefault:"us-west-001"`
	BucketName      string `env:"S3_BUCKET_NAME"`
	EndpointURL     string `env:"S3_ENDPOINT_URL"`
}

type Metrics struct {
	User     string `env:"METRICS_USER" envDefault:"admin"`
	Password string `env:"METRICS_PASSWORD"`
}

// Config is the full process configuration.
type Config struct {
	App         App
	Database    Database
	Cache       Cache
	Billing     Billing
	Kafka       Kafka
	S3Archive   S3Archive
	Metrics     Metrics
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`
}

// Load parses configuration from the given environment map.
func Load(environment map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Billing.Provider = strings.ToLower(strings.TrimSpace(cfg.Billing.Provider))
	return &cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c *Config) IsDev() bool {
	return c.App.Env == "dev"
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS.
func (c *Config) IsAdminEmail(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return false
	}
	for _, a := range c.AdminEmails {
		if strings.ToLower(strings.TrimSpace(a)) == e {
			return true
		}
	}
	return false
}

// Validate reports missing settings that would block checkouts or webhook
// ingestion for the active provider.
func (c *Config) Validate() error {
	var errs []error
	switch c.Billing.Provider {
	case models.BillingProviderLemonSqueezy:
		if c.Billing.LemonSqueezyAPIKey == "" {
			errs = append(errs, errors.New("LEMONSQUEEZY_API_KEY is required"))
		}
		if c.Billing.LemonSqueezyStoreID == "" {
			errs = append(errs, errors.New("LEMONSQUEEZY_STORE_ID is required"))
		}
		if c.Billing.LemonSqueezySecret == "" {
			errs = append(errs, errors.New("LEMONSQUEEZY_WEBHOOK_SECRET is required"))
		}
	case models.BillingProviderStripe:
		if c.Billing.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
		}
		if c.Billing.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported BILLING_PROVIDER %q", c.Billing.Provider))
	}
	if c.S3Archive.Enabled && c.S3Archive.BucketName == "" {
		errs = append(errs, errors.New("S3_BUCKET_NAME is required when S3 archive is enabled"))
	}
	return errors.Join(errs...)
}
