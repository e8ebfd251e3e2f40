package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/controllers"
	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
	apiv1 "github.com/DaCoderMan/workitu-tech-website-sub000/internal/api/v1"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/billing"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/cache"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/catalog"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/config"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/constants"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/database"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/entitlements"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/env"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/events"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/logging"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/metrics"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/middleware"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/router"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/s3archive"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/session"
)

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load(env.Merged())
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	logging.Setup(cfg.App.Env, cfg.App.LogLevel)

	if err := cfg.Validate(); err != nil {
		if !cfg.IsDev() {
			log.WithError(err).Fatal("Billing configuration incomplete")
		}
		log.WithError(err).Warn("Billing configuration incomplete, checkouts or webhooks will fail")
	}

	db, err := database.SetupDatabase(cfg.Database, cfg.IsDev())
	if err != nil {
		log.WithError(err).Fatal("Database unavailable")
	}

	var rdb *redis.Client
	if cfg.Cache.Enabled() {
		rdb = cache.SetupCache(cfg.Cache)
	}

	app, shutdown, err := NewApplication(context.Background(), cfg, db, rdb)
	if err != nil {
		log.WithError(err).Fatal("Could not build application")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Warn("Server shutdown incomplete")
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Error("Server stopped")
	}

	shutdown()
	if err := cache.Close(); err != nil {
		log.WithError(err).Warn("Closing Redis failed")
	}
}

// NewApplication wires the billing services into a fiber app. The returned
// func releases the side-effect publishers.
func NewApplication(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*fiber.App, func(), error) {
	cat, err := catalog.Load(cfg.Billing.CatalogFile, func(name string) string {
		return env.GetEnv(name, "")
	})
	if err != nil {
		return nil, nil, err
	}

	var repo billing.Repository = billing.NewRepository(db, cfg.Billing.StorageTimeout)
	repo = billing.NewCachedRepository(repo, rdb, cfg.Billing.MarkerCacheTTL)

	lemon := billing.NewLemonSqueezyClient(cfg.Billing)
	var provider billing.Provider = lemon
	var reader billing.SubscriptionReader
	if cfg.Billing.LemonSqueezyAPIKey != "" {
		reader = lemon
	}
	if cfg.Billing.Provider == models.BillingProviderStripe {
		stripeClient := billing.NewStripeClient(cfg.Billing.StripeSecretKey, cfg.App.BaseURL, "", cfg.Billing.ProviderTimeout)
		provider = stripeClient
		reader = nil
		if cfg.Billing.StripeSecretKey != "" {
			reader = stripeClient
		}
	}

	var notifier billing.ChangeNotifier = events.LogNotifier{}
	kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka)
	if err != nil {
		log.WithError(err).Warn("Kafka publisher unavailable, logging entitlement changes only")
	} else if kafkaPublisher != nil {
		notifier = kafkaPublisher
	}

	webhooks := billing.NewWebhookProcessor(cfg.Billing.LemonSqueezySecret, repo, cat).
		WithStripeSecret(cfg.Billing.StripeWebhookSecret).
		WithNotifier(notifier)
	archiver, err := s3archive.New(ctx, cfg.S3Archive, cfg.App.Env)
	if err != nil {
		log.WithError(err).Warn("Webhook payload archive unavailable")
	} else if archiver != nil {
		webhooks.WithArchiver(archiver)
	}

	var reconciler *billing.Reconciler
	if reader != nil {
		reconciler = billing.NewReconciler(reader, repo, cat).WithNotifier(notifier)
	}

	checkout := billing.NewCheckoutService(cat, provider, cfg.App.BaseURL+constants.CheckoutSuccessRoute)
	checker := entitlements.NewChecker(repo)

	store := session.NewSessionStore(rdb, !cfg.IsDev())

	app := fiber.New(fiber.Config{
		AppName:   "workitu-billing",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Use(metrics.Middleware())

	// SWAGGER / OPENAPI
	if specPath := findProjectFile("public/docs/v1/openapi.yml"); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	} else {
		log.Warn("OpenAPI document not found, API docs disabled")
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Config: cfg,
		API:    apiv1.NewAPIServer(checkout, cat, checker, cfg.IsDev()),
		Billing: &controllers.BillingController{
			Webhooks:   webhooks,
			Reconciler: reconciler,
			Dev:        cfg.IsDev(),
		},
		Verifier: middleware.NewSessionVerifier(store, cfg.IsAdminEmail),
		Redis:    rdb,
	})

	log.WithFields(log.Fields{
		"provider": provider.Name(),
		"products": len(cat.Products()),
		"kafka":    kafkaPublisher != nil,
		"archive":  archiver != nil,
	}).Info("Billing services ready")

	shutdown := func() {
		if kafkaPublisher != nil {
			kafkaPublisher.Close()
		}
	}
	return app, shutdown, nil
}

// findProjectFile resolves rel against the working directory and its
// parents, so the binary works from the repo root and from cmd/workitu.
func findProjectFile(rel string) string {
	for _, base := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(base + rel); err == nil {
			return base + rel
		}
	}
	return ""
}
