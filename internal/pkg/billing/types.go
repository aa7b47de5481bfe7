package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/entitlements"
)

// MetadataUserIDKey is the processor metadata key correlating a processor
// object with an application user.
const MetadataUserIDKey = "userId"

// Subscription is the processor-neutral view of a subscription object used by
// the reconciliation engine.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CurrentPeriodEnd  int64 // unix seconds, 0 when unknown
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// UserID returns the application user named in the subscription metadata.
func (s Subscription) UserID() string {
	if s.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(s.Metadata[MetadataUserIDKey])
}

// SnapshotUpdate is a partial BillingSnapshot. Nil fields are left untouched
// when merged into the store; LastSyncedAt is always written.
// ClearCurrentPeriodEnd writes NULL to the period end and wins over
// CurrentPeriodEndMs.
type SnapshotUpdate struct {
	CustomerID         *string
	SubscriptionID     *string
	Status             *string
	ProcessorStatus    *string
	PlanType           *string
	PriceID            *string
	CurrentPeriodEndMs *int64
	CancelAtPeriodEnd  *bool
	CheckoutSessionID  *string
	SyncedAt           time.Time

	ClearCurrentPeriodEnd bool
}

// Columns returns the snapshot columns written by this update.
func (u SnapshotUpdate) Columns() []string {
	cols := make([]string, 0, 10)
	if u.CustomerID != nil {
		cols = append(cols, "customer_id")
	}
	if u.SubscriptionID != nil {
		cols = append(cols, "subscription_id")
	}
	if u.Status != nil {
		cols = append(cols, "status")
	}
	if u.ProcessorStatus != nil {
		cols = append(cols, "processor_status")
	}
	if u.PlanType != nil {
		cols = append(cols, "plan_type")
	}
	if u.PriceID != nil {
		cols = append(cols, "price_id")
	}
	if u.CurrentPeriodEndMs != nil || u.ClearCurrentPeriodEnd {
		cols = append(cols, "current_period_end_ms")
	}
	if u.CancelAtPeriodEnd != nil {
		cols = append(cols, "cancel_at_period_end")
	}
	if u.CheckoutSessionID != nil {
		cols = append(cols, "checkout_session_id")
	}
	return append(cols, "last_synced_at")
}

// ApplyTo copies the set fields of u onto snap.
func (u SnapshotUpdate) ApplyTo(snap *models.BillingSnapshot) {
	if u.CustomerID != nil {
		snap.CustomerID = *u.CustomerID
	}
	if u.SubscriptionID != nil {
		snap.SubscriptionID = *u.SubscriptionID
	}
	if u.Status != nil {
		snap.Status = *u.Status
	}
	if u.ProcessorStatus != nil {
		snap.ProcessorStatus = *u.ProcessorStatus
	}
	if u.PlanType != nil {
		snap.PlanType = *u.PlanType
	}
	if u.PriceID != nil {
		snap.PriceID = *u.PriceID
	}
	switch {
	case u.ClearCurrentPeriodEnd:
		snap.CurrentPeriodEndMs = nil
	case u.CurrentPeriodEndMs != nil:
		v := *u.CurrentPeriodEndMs
		snap.CurrentPeriodEndMs = &v
	}
	if u.CancelAtPeriodEnd != nil {
		snap.CancelAtPeriodEnd = *u.CancelAtPeriodEnd
	}
	if u.CheckoutSessionID != nil {
		snap.CheckoutSessionID = *u.CheckoutSessionID
	}
	synced := u.SyncedAt
	snap.LastSyncedAt = &synced
}

// DeriveSnapshot computes the snapshot fields implied by one subscription
// object. Non-entitling statuses always carry the basic plan.
func DeriveSnapshot(sub Subscription, catalog Catalog, now time.Time) SnapshotUpdate {
	status := normalizeStatus(sub.Status)
	plan := entitlements.PlanBasic
	if isEntitlingStatus(status) {
		plan = catalog.ResolvePlan(sub.PriceID)
	}

	u := SnapshotUpdate{
		SubscriptionID:    strPtr(sub.ID),
		Status:            strPtr(status),
		ProcessorStatus:   strPtr(strings.ToLower(strings.TrimSpace(sub.Status))),
		PlanType:          strPtr(string(plan)),
		PriceID:           strPtr(sub.PriceID),
		CancelAtPeriodEnd: boolPtr(sub.CancelAtPeriodEnd),
		SyncedAt:          now,
	}
	if sub.CustomerID != "" {
		u.CustomerID = strPtr(sub.CustomerID)
	}
	if sub.CurrentPeriodEnd > 0 {
		ms := sub.CurrentPeriodEnd * 1000
		u.CurrentPeriodEndMs = &ms
	}
	return u
}

// cancellationUpdate is the terminal snapshot for a canceled subscription.
// The price id is left as it was.
func cancellationUpdate(sub Subscription, now time.Time) SnapshotUpdate {
	processorStatus := strings.ToLower(strings.TrimSpace(sub.Status))
	if processorStatus == "" {
		processorStatus = models.BillingStatusCanceled
	}
	u := SnapshotUpdate{
		Status:            strPtr(models.BillingStatusCanceled),
		ProcessorStatus:   strPtr(processorStatus),
		PlanType:          strPtr(string(entitlements.PlanBasic)),
		CancelAtPeriodEnd: boolPtr(false),
		SyncedAt:          now,
	}
	if sub.ID != "" {
		u.SubscriptionID = strPtr(sub.ID)
	}
	return u
}

// noSubscriptionUpdate resets a snapshot to "never subscribed" while keeping
// the customer linkage.
func noSubscriptionUpdate(now time.Time) SnapshotUpdate {
	return SnapshotUpdate{
		SubscriptionID:        strPtr(""),
		Status:                strPtr(models.BillingStatusNone),
		ProcessorStatus:       strPtr(""),
		PlanType:              strPtr(string(entitlements.PlanBasic)),
		PriceID:               strPtr(""),
		CancelAtPeriodEnd:     boolPtr(false),
		ClearCurrentPeriodEnd: true,
		SyncedAt:              now,
	}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
