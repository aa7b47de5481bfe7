package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/AlbumFox/app/controllers"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/auth"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/billing"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/cache"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/config"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/database"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/env"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/router"
)

func main() {
	app, cfg, err := NewApplication()
	if err != nil {
		log.Fatal(err)
	}
	err = app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *config.Config, error) {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.SetupDatabase(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	redisClient := cache.SetupCache(cfg.Cache)

	// BILLING
	catalog := billing.NewCatalog(cfg.Stripe.ProPriceID, cfg.Stripe.PremiumPriceID)
	processor := billing.NewStripeProcessor(cfg.Stripe.SecretKey)
	repo := billing.NewRepository(db)
	if cache.Available() {
		repo = billing.NewCachedRepository(repo, redisClient, cfg.SnapshotCacheTTL)
	}
	reconciler := billing.NewReconciler(repo, processor, catalog)
	billingController := controllers.NewBillingController(
		reconciler,
		billing.NewCheckoutService(repo, processor, catalog),
		billing.NewDispatcher(cfg.Stripe.WebhookSecret, repo, reconciler),
		catalog,
		cfg.RequestTimeout,
	)

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/albumfox to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit:         1 << 20, // webhook payloads and small JSON bodies only
		EnablePrintRoutes: env.IsDev(),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:        billingController,
		Verifier:       auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		DB:             db,
		LimiterStorage: cache.NewLimiterStorage(),
		SyncRateLimit:  cfg.SyncRateLimit,
		SyncRateWindow: cfg.SyncRateWindow,
		Metrics:        cfg.Metrics,
	})

	return app, cfg, nil
}
