package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Reconciler keeps the stored billing snapshots in line with the payment
// processor. It is the only writer of the subscription fields and is shared by
// checkout completion, webhook delivery and manual sync.
type Reconciler struct {
	repo      Repository
	processor Processor
	catalog   Catalog
	now       func() time.Time
}

// freshSnapshotReader is implemented by repositories that can read past a
// cache.
type freshSnapshotReader interface {
	GetFreshSnapshot(ctx context.Context, userID string) (*models.BillingSnapshot, error)
}

// NewReconciler creates a reconciler from injected dependencies.
func NewReconciler(repo Repository, processor Processor, catalog Catalog) *Reconciler {
	return &Reconciler{
		repo:      repo,
		processor: processor,
		catalog:   catalog,
		now:       time.Now,
	}
}

// Snapshot returns the stored snapshot of userID, or the empty snapshot for
// users the processor never saw.
func (r *Reconciler) Snapshot(ctx context.Context, userID string) (*models.BillingSnapshot, error) {
	snap, err := r.repo.GetSnapshot(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewEmptyBillingSnapshot(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load billing snapshot: %w", err)
	}
	return snap, nil
}

// ApplySnapshot merges the state implied by sub into the user's snapshot.
// Applying the same subscription twice yields the same stored state.
func (r *Reconciler) ApplySnapshot(ctx context.Context, userID string, sub Subscription) error {
	return r.applySnapshot(ctx, userID, sub, triggerWebhook)
}

func (r *Reconciler) applySnapshot(ctx context.Context, userID string, sub Subscription, trigger string) error {
	update := DeriveSnapshot(sub, r.catalog, r.now())
	if r.isStaleObservation(ctx, userID, sub.ID, *update.Status, isEntitlingStatus(*update.Status)) {
		return nil
	}
	return r.merge(ctx, userID, update, trigger)
}

// ApplyCancellation stores the subscription as canceled on the basic plan.
func (r *Reconciler) ApplyCancellation(ctx context.Context, userID string, sub Subscription) error {
	if r.isStaleObservation(ctx, userID, sub.ID, models.BillingStatusCanceled, false) {
		return nil
	}
	return r.merge(ctx, userID, cancellationUpdate(sub, r.now()), triggerWebhook)
}

// ApplyPaymentFailure marks the subscription past due and touches nothing else.
func (r *Reconciler) ApplyPaymentFailure(ctx context.Context, userID, subscriptionID string) error {
	if r.isStaleObservation(ctx, userID, subscriptionID, models.BillingStatusPastDue, false) {
		return nil
	}
	update := SnapshotUpdate{
		Status:          strPtr(models.BillingStatusPastDue),
		ProcessorStatus: strPtr(models.BillingStatusPastDue),
		SyncedAt:        r.now(),
	}
	if subscriptionID != "" {
		update.SubscriptionID = strPtr(subscriptionID)
	}
	return r.merge(ctx, userID, update, triggerWebhook)
}

// HandleCheckoutCompleted links the completed session and customer to the
// user and, when the session created a subscription, applies it.
func (r *Reconciler) HandleCheckoutCompleted(ctx context.Context, c CheckoutCompletion) error {
	if c.UserID == "" {
		log.Errorf("[Billing] Checkout session %s has no user reference, dropping", c.SessionID)
		return fmt.Errorf("checkout session %s: %w", c.SessionID, ErrMissingUserMetadata)
	}

	linkage := SnapshotUpdate{SyncedAt: r.now()}
	if c.CustomerID != "" {
		linkage.CustomerID = strPtr(c.CustomerID)
	}
	if c.SessionID != "" {
		linkage.CheckoutSessionID = strPtr(c.SessionID)
	}
	if err := r.merge(ctx, c.UserID, linkage, triggerCheckout); err != nil {
		return err
	}

	if c.SubscriptionID == "" {
		return nil
	}
	sub, err := r.processor.GetSubscription(ctx, c.SubscriptionID)
	if err != nil {
		log.Warnf("[Billing] Could not fetch subscription %s after checkout for user %s: %v", c.SubscriptionID, c.UserID, err)
		return fmt.Errorf("fetch subscription after checkout: %w", err)
	}
	return r.applySnapshot(ctx, c.UserID, *sub, triggerCheckout)
}

// HandleEvent routes a decoded event to the matching write method and returns
// the user the event was attributed to.
func (r *Reconciler) HandleEvent(ctx context.Context, ev *Event) (string, error) {
	switch ev.Kind {
	case EventCheckoutCompleted:
		return ev.Checkout.UserID, r.HandleCheckoutCompleted(ctx, *ev.Checkout)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		sub := *ev.Subscription
		userID := sub.UserID()
		if userID == "" {
			log.Errorf("[Billing] Subscription %s in event %s has no %s metadata, dropping", sub.ID, ev.ID, MetadataUserIDKey)
			return "", fmt.Errorf("subscription %s: %w", sub.ID, ErrMissingUserMetadata)
		}
		if ev.Kind == EventSubscriptionDeleted {
			return userID, r.ApplyCancellation(ctx, userID, sub)
		}
		return userID, r.ApplySnapshot(ctx, userID, sub)

	case EventPaymentSucceeded, EventPaymentFailed:
		sub, err := r.invoiceSubscription(ctx, ev.Invoice)
		if err != nil || sub == nil {
			return "", err
		}
		userID := sub.UserID()
		if userID == "" {
			log.Errorf("[Billing] Subscription %s of invoice %s has no %s metadata, dropping", sub.ID, ev.Invoice.ID, MetadataUserIDKey)
			return "", fmt.Errorf("subscription %s: %w", sub.ID, ErrMissingUserMetadata)
		}
		if ev.Kind == EventPaymentFailed {
			return userID, r.ApplyPaymentFailure(ctx, userID, sub.ID)
		}
		return userID, r.ApplySnapshot(ctx, userID, *sub)
	}
	return "", nil
}

// invoiceSubscription resolves the subscription billed by an invoice. A nil
// subscription without error means the invoice is not subscription related.
func (r *Reconciler) invoiceSubscription(ctx context.Context, inv *InvoiceRef) (*Subscription, error) {
	subID := inv.SubscriptionID
	if subID == "" {
		resolved, err := r.processor.GetInvoiceSubscriptionID(ctx, inv.ID)
		if err != nil {
			log.Warnf("[Billing] Could not fetch invoice %s: %v", inv.ID, err)
			return nil, fmt.Errorf("fetch invoice: %w", err)
		}
		subID = resolved
	}
	if subID == "" {
		log.Infof("[Billing] Invoice %s is not tied to a subscription, ignoring", inv.ID)
		return nil, nil
	}

	sub, err := r.processor.GetSubscription(ctx, subID)
	if err != nil {
		log.Warnf("[Billing] Could not fetch subscription %s of invoice %s: %v", subID, inv.ID, err)
		return nil, fmt.Errorf("fetch invoice subscription: %w", err)
	}
	return sub, nil
}

// freshSnapshot loads the stored row, bypassing any snapshot cache.
func (r *Reconciler) freshSnapshot(ctx context.Context, userID string) (*models.BillingSnapshot, error) {
	if fr, ok := r.repo.(freshSnapshotReader); ok {
		return fr.GetFreshSnapshot(ctx, userID)
	}
	return r.repo.GetSnapshot(ctx, userID)
}

// isStaleObservation reports whether a downgrading observation of
// subscriptionID must be skipped because the user already holds a different,
// entitling subscription. Entitling observations are never skipped.
func (r *Reconciler) isStaleObservation(ctx context.Context, userID, subscriptionID, status string, entitling bool) bool {
	if entitling || subscriptionID == "" {
		return false
	}
	current, err := r.freshSnapshot(ctx, userID)
	if err != nil {
		return false
	}
	if current.SubscriptionID == "" || current.SubscriptionID == subscriptionID {
		return false
	}
	if !isEntitlingStatus(current.Status) {
		return false
	}
	log.Infof("[Billing] Ignoring %s for subscription %s of user %s, subscription %s is %s",
		status, subscriptionID, userID, current.SubscriptionID, current.Status)
	return true
}

func (r *Reconciler) merge(ctx context.Context, userID string, update SnapshotUpdate, trigger string) error {
	if err := r.repo.MergeSnapshot(ctx, userID, update); err != nil {
		snapshotWritesTotal.WithLabelValues(trigger, "error").Inc()
		log.Errorf("[Billing] Failed to store billing snapshot for user %s: %v", userID, err)
		return fmt.Errorf("store billing snapshot: %w", err)
	}
	snapshotWritesTotal.WithLabelValues(trigger, "ok").Inc()
	return nil
}
