package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/AlbumFox/app/controllers"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/auth"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/middleware"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/usercontext"
)

type ApiRouter struct {
	billing        *controllers.BillingController
	verifier       auth.Verifier
	limiterStorage fiber.Storage
	syncMax        int
	syncWindow     time.Duration
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	billing := v1.Group("/billing")

	// Processor deliveries are authenticated by their signature, not a token.
	billing.Post("/webhook", h.billing.HandleWebhook)
	billing.Get("/plans", h.billing.HandlePlans)

	requireAuth := middleware.RequireAPIAuth(h.verifier)
	billing.Get("/status", requireAuth, h.billing.HandleStatus)
	billing.Post("/sync", requireAuth, h.syncLimiter(), h.billing.HandleSync)
	billing.Post("/checkout", requireAuth, h.billing.HandleCheckout)
	billing.Post("/portal", requireAuth, h.billing.HandlePortal)
}

// syncLimiter caps manual syncs per user since every call reaches the
// payment processor.
func (h ApiRouter) syncLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        h.syncMax,
		Expiration: h.syncWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "billing-sync:" + usercontext.GetUserID(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many sync requests, please wait before trying again",
			})
		},
		Storage: h.limiterStorage,
	})
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	syncMax := deps.SyncRateLimit
	if syncMax <= 0 {
		syncMax = 5
	}
	syncWindow := deps.SyncRateWindow
	if syncWindow <= 0 {
		syncWindow = time.Minute
	}
	return &ApiRouter{
		billing:        deps.Billing,
		verifier:       deps.Verifier,
		limiterStorage: deps.LimiterStorage,
		syncMax:        syncMax,
		syncWindow:     syncWindow,
	}
}
