package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AlbumFox/app/controllers"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/auth"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/config"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired components the routes are served by.
type Dependencies struct {
	Billing  *controllers.BillingController
	Verifier auth.Verifier
	DB       *gorm.DB

	// LimiterStorage may be nil, the limiter then counts in memory.
	LimiterStorage fiber.Storage
	SyncRateLimit  int
	SyncRateWindow time.Duration

	Metrics config.MetricsConfig
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// System routes first so health checks never hit API middleware.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
