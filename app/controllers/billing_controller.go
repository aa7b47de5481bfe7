package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/billing"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/usercontext"
)

const defaultRequestTimeout = 15 * time.Second

// BillingController serves the billing API. All dependencies are injected at
// startup.
type BillingController struct {
	reconciler *billing.Reconciler
	checkout   *billing.CheckoutService
	dispatcher *billing.Dispatcher
	catalog    billing.Catalog
	timeout    time.Duration
}

func NewBillingController(
	reconciler *billing.Reconciler,
	checkout *billing.CheckoutService,
	dispatcher *billing.Dispatcher,
	catalog billing.Catalog,
	timeout time.Duration,
) *BillingController {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &BillingController{
		reconciler: reconciler,
		checkout:   checkout,
		dispatcher: dispatcher,
		catalog:    catalog,
		timeout:    timeout,
	}
}

type checkoutRequest struct {
	PriceID    string `json:"priceId" validate:"required"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl" validate:"required,url"`
}

type statusResponse struct {
	HasActiveSubscription bool                `json:"hasActiveSubscription"`
	SubscriptionStatus    string              `json:"subscriptionStatus"`
	CurrentPeriodEnd      *int64              `json:"currentPeriodEnd"`
	CancelAtPeriodEnd     bool                `json:"cancelAtPeriodEnd"`
	PlanType              string              `json:"planType"`
	PriceID               *string             `json:"priceId"`
	LastSyncedAt          *string             `json:"lastSyncedAt"`
	Entitlements          entitlements.Limits `json:"entitlements"`
}

type syncResponse struct {
	Success               bool    `json:"success"`
	Message               string  `json:"message"`
	HasActiveSubscription bool    `json:"hasActiveSubscription"`
	SubscriptionStatus    string  `json:"subscriptionStatus"`
	SubscriptionID        *string `json:"subscriptionId"`
	CurrentPeriodEnd      *int64  `json:"currentPeriodEnd"`
	CancelAtPeriodEnd     bool    `json:"cancelAtPeriodEnd"`
	PlanType              string  `json:"planType"`
}

type planResponse struct {
	Plan         entitlements.Plan   `json:"plan"`
	PriceID      *string             `json:"priceId"`
	Entitlements entitlements.Limits `json:"entitlements"`
}

func (bc *BillingController) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), bc.timeout)
}

// HandleWebhook receives signed processor events.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := bc.requestContext(c)
	defer cancel()

	ack, err := bc.dispatcher.Handle(ctx, rawBody, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			log.Warnf("[Webhook] Rejected delivery from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_signature",
				"message": "Webhook signature verification failed",
			})
		}
		log.Errorf("[Webhook] Unexpected dispatcher error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.Status(fiber.StatusOK).JSON(ack)
}

// HandleCheckout starts a hosted checkout for the caller.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req checkoutRequest
	if err := parseAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	ctx, cancel := bc.requestContext(c)
	defer cancel()

	session, err := bc.checkout.CreateCheckoutSession(ctx, userCtx.UserID, userCtx.Email, billing.CheckoutRequest{
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		if errors.Is(err, billing.ErrUnknownPrice) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "bad_request",
				"message": "priceId is not a known plan price",
			})
		}
		log.Errorf("[Billing] Checkout failed for user %s: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "payment_provider_error",
			"message": "Checkout could not be started, please try again",
		})
	}
	return c.Status(fiber.StatusOK).JSON(session)
}

// HandlePortal returns the processor billing portal URL of the caller.
func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req portalRequest
	if err := parseAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	ctx, cancel := bc.requestContext(c)
	defer cancel()

	url, err := bc.checkout.CreatePortalSession(ctx, userCtx.UserID, req.ReturnURL)
	if err != nil {
		if errors.Is(err, billing.ErrNoCustomer) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "no_customer",
				"message": "No billing account yet, start a checkout first",
			})
		}
		log.Errorf("[Billing] Portal session failed for user %s: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "payment_provider_error",
			"message": "Billing portal is unavailable, please try again",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}

// HandleStatus returns the stored billing state of the caller.
func (bc *BillingController) HandleStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := bc.requestContext(c)
	defer cancel()

	snap, err := bc.reconciler.Snapshot(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("[Billing] Status lookup failed for user %s: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_server_error",
			"message": "Billing status is temporarily unavailable",
		})
	}

	active := billing.HasActiveSubscription(snap.Status)
	return c.Status(fiber.StatusOK).JSON(statusResponse{
		HasActiveSubscription: active,
		SubscriptionStatus:    snap.Status,
		CurrentPeriodEnd:      snap.CurrentPeriodEndMs,
		CancelAtPeriodEnd:     snap.CancelAtPeriodEnd,
		PlanType:              snap.PlanType,
		PriceID:               optionalString(snap.PriceID),
		LastSyncedAt:          formatTimePtr(snap.LastSyncedAt),
		Entitlements:          entitlements.Effective(entitlements.Normalize(snap.PlanType), active),
	})
}

// HandleSync reconciles the caller against the processor on demand.
func (bc *BillingController) HandleSync(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := bc.requestContext(c)
	defer cancel()

	result := bc.reconciler.Sync(ctx, userCtx.UserID)
	return c.Status(fiber.StatusOK).JSON(newSyncResponse(result))
}

// HandlePlans lists the purchasable plans and what they include.
func (bc *BillingController) HandlePlans(c *fiber.Ctx) error {
	plans := make([]planResponse, 0, len(entitlements.Plans()))
	for _, plan := range entitlements.Plans() {
		priceID, _ := bc.catalog.PriceFor(plan)
		plans = append(plans, planResponse{
			Plan:         plan,
			PriceID:      optionalString(priceID),
			Entitlements: entitlements.ForPlan(plan),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"plans": plans})
}

func newSyncResponse(result billing.SyncResult) syncResponse {
	snap := result.Snapshot
	if snap == nil {
		snap = models.NewEmptyBillingSnapshot("")
	}
	return syncResponse{
		Success:               result.Success,
		Message:               result.Message,
		HasActiveSubscription: billing.HasActiveSubscription(snap.Status),
		SubscriptionStatus:    snap.Status,
		SubscriptionID:        optionalString(snap.SubscriptionID),
		CurrentPeriodEnd:      snap.CurrentPeriodEndMs,
		CancelAtPeriodEnd:     snap.CancelAtPeriodEnd,
		PlanType:              snap.PlanType,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
