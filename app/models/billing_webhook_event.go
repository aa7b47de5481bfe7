package models

import "time"

// BillingWebhookEvent journals verified processor webhook deliveries. A resent
// event that was already applied is acknowledged without touching the
// processor again. Verified events are always acknowledged, so an event that
// failed is only applied again when it is resent by hand from the processor.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;uniqueIndex:ux_billing_webhook_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_webhook_events_provider_event,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	UserID          string     `gorm:"type:varchar(128);not null;default:'';index" json:"user_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Applied reports whether the event was processed without error.
func (e *BillingWebhookEvent) Applied() bool {
	return e != nil && e.ProcessedAt != nil && e.ProcessingError == ""
}
