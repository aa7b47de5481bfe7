package models

import "time"

const (
	BillingProviderStripe = "stripe"
)

const (
	BillingStatusNone     = "none"
	BillingStatusActive   = "active"
	BillingStatusTrialing = "trialing"
	BillingStatusPastDue  = "past_due"
	BillingStatusCanceled = "canceled"
)

const (
	PlanTypeBasic   = "basic"
	PlanTypePro     = "pro"
	PlanTypePremium = "premium"
)

// BillingSnapshot is the last-known subscription state of a user as reported
// by the payment processor. One row per user; rows are merge-updated and never
// deleted. Only the billing reconciler writes the subscription fields.
type BillingSnapshot struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             string     `gorm:"type:varchar(128);not null;uniqueIndex:ux_billing_snapshots_user" json:"user_id"`
	CustomerID         string     `gorm:"type:varchar(191);not null;default:'';index" json:"customer_id"`
	SubscriptionID     string     `gorm:"type:varchar(191);not null;default:''" json:"subscription_id"`
	Status             string     `gorm:"type:varchar(32);not null;default:'none';index" json:"status"`
	ProcessorStatus    string     `gorm:"type:varchar(32);not null;default:''" json:"processor_status"`
	PlanType           string     `gorm:"type:varchar(20);not null;default:'basic'" json:"plan_type"`
	PriceID            string     `gorm:"type:varchar(191);not null;default:''" json:"price_id"`
	CurrentPeriodEndMs *int64     `gorm:"default:null" json:"current_period_end_ms,omitempty"`
	CancelAtPeriodEnd  bool       `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CheckoutSessionID  string     `gorm:"type:varchar(191);not null;default:''" json:"checkout_session_id"`
	LastSyncedAt       *time.Time `gorm:"type:timestamp;default:null" json:"last_synced_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewEmptyBillingSnapshot returns the state of a user that never reached the
// payment processor.
func NewEmptyBillingSnapshot(userID string) *BillingSnapshot {
	return &BillingSnapshot{
		UserID:   userID,
		Status:   BillingStatusNone,
		PlanType: PlanTypeBasic,
	}
}
