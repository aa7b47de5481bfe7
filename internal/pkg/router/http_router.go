package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AlbumFox/internal/pkg/cache"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/config"
)

// HttpRouter serves the operational endpoints: health, metrics and monitor.
type HttpRouter struct {
	db      *gorm.DB
	metrics config.MetricsConfig
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.health)

	if h.metrics.Password == "" {
		log.Warn("METRICS_PASSWORD is empty, /metrics and /monitor are disabled")
		return
	}
	metricsAuth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.metrics.User: h.metrics.Password,
		},
	})
	app.Get("/metrics", metricsAuth, adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/monitor", metricsAuth, monitor.New(monitor.Config{Title: "AlbumFox Monitor"}))
}

// health reports database reachability; the cache is informational only.
func (h HttpRouter) health(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := pingDatabase(c.UserContext(), h.db); err != nil {
		log.Errorf("Health check: database unreachable: %v", err)
		dbStatus = "down"
	}
	cacheStatus := "ok"
	if !cache.Available() {
		cacheStatus = "down"
	}

	code, status := fiber.StatusOK, "ok"
	if dbStatus != "ok" {
		code, status = fiber.StatusServiceUnavailable, "degraded"
	}
	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"database": dbStatus,
		"cache":    cacheStatus,
	})
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{db: deps.DB, metrics: deps.Metrics}
}
