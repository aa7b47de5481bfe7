package billing

import (
	"context"
	"errors"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// syncPageSize bounds how many subscriptions a manual sync inspects.
const syncPageSize = 10

// SyncResult is the outcome of a manual sync. Snapshot is always set and holds
// the state the caller should display, fresh or stale.
type SyncResult struct {
	Success  bool
	Message  string
	Snapshot *models.BillingSnapshot
}

type selection int

const (
	selectedNone selection = iota
	selectedEntitling
	selectedCanceled
)

// selectSubscription picks the subscription a manual sync reflects: the first
// entitling one in processor order, else the first canceled one.
func selectSubscription(subs []Subscription) (*Subscription, selection) {
	for i := range subs {
		if isEntitlingStatus(subs[i].Status) {
			return &subs[i], selectedEntitling
		}
	}
	for i := range subs {
		if normalizeStatus(subs[i].Status) == models.BillingStatusCanceled {
			return &subs[i], selectedCanceled
		}
	}
	return nil, selectedNone
}

// Sync reads the customer's subscriptions from the processor and stores the
// selected one. Manual sync is authoritative: it overwrites whatever the
// webhooks left behind.
func (r *Reconciler) Sync(ctx context.Context, userID string) SyncResult {
	current, err := r.freshSnapshot(ctx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Sync] Could not load billing snapshot for user %s: %v", userID, err)
			syncRequestsTotal.WithLabelValues("store_error").Inc()
			return SyncResult{Message: "Billing state is temporarily unavailable", Snapshot: models.NewEmptyBillingSnapshot(userID)}
		}
		current = models.NewEmptyBillingSnapshot(userID)
	}
	if current.CustomerID == "" {
		syncRequestsTotal.WithLabelValues("no_customer").Inc()
		return SyncResult{Message: "No billing customer on file", Snapshot: current}
	}

	subs, err := r.processor.ListSubscriptions(ctx, current.CustomerID, syncPageSize)
	if err != nil {
		log.Errorf("[Sync] Could not list subscriptions of customer %s for user %s: %v", current.CustomerID, userID, err)
		syncRequestsTotal.WithLabelValues("processor_error").Inc()
		return SyncResult{Message: "Could not reach the payment provider, showing last known state", Snapshot: current}
	}

	selected, kind := selectSubscription(subs)
	now := r.now()
	var update SnapshotUpdate
	var message string
	switch kind {
	case selectedEntitling:
		update = DeriveSnapshot(*selected, r.catalog, now)
		message = "Subscription synchronized"
	case selectedCanceled:
		update = cancellationUpdate(*selected, now)
		message = "Subscription is canceled"
	default:
		update = noSubscriptionUpdate(now)
		message = "No subscription found"
	}

	if err := r.merge(ctx, userID, update, triggerSync); err != nil {
		syncRequestsTotal.WithLabelValues("store_error").Inc()
		return SyncResult{Message: "Could not store the synchronized state", Snapshot: current}
	}

	if selected != nil && selected.UserID() != userID {
		r.backfillUserID(ctx, userID, selected.ID)
	}

	next := *current
	update.ApplyTo(&next)
	syncRequestsTotal.WithLabelValues("ok").Inc()
	log.Infof("[Sync] User %s synchronized: status=%s plan=%s", userID, next.Status, next.PlanType)
	return SyncResult{Success: true, Message: message, Snapshot: &next}
}

// backfillUserID records the caller on a subscription created without user
// metadata so that later webhooks can be attributed.
func (r *Reconciler) backfillUserID(ctx context.Context, userID, subscriptionID string) {
	err := r.processor.UpdateSubscriptionMetadata(ctx, subscriptionID, map[string]string{MetadataUserIDKey: userID})
	if err != nil {
		log.Warnf("[Sync] Could not back-fill %s on subscription %s for user %s: %v", MetadataUserIDKey, subscriptionID, userID, err)
		return
	}
	log.Infof("[Sync] Back-filled %s on subscription %s for user %s", MetadataUserIDKey, subscriptionID, userID)
}
