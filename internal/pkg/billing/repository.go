package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the reconciliation engine.
type Repository interface {
	GetSnapshot(ctx context.Context, userID string) (*models.BillingSnapshot, error)
	MergeSnapshot(ctx context.Context, userID string, update SnapshotUpdate) error
	RecordWebhookEvent(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, userID, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// GetSnapshot returns gorm.ErrRecordNotFound for users without a row.
func (r *gormRepository) GetSnapshot(ctx context.Context, userID string) (*models.BillingSnapshot, error) {
	var snap models.BillingSnapshot
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&snap).Error; err != nil {
		return nil, err
	}
	return &snap, nil
}

// MergeSnapshot inserts the row for userID or updates exactly the columns
// carried by update. Concurrent merges resolve last-write-wins per column.
func (r *gormRepository) MergeSnapshot(ctx context.Context, userID string, update SnapshotUpdate) error {
	row := models.NewEmptyBillingSnapshot(userID)
	update.ApplyTo(row)

	cols := append(update.Columns(), "updated_at")
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(row).Error
}

func (r *gormRepository) RecordWebhookEvent(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, userID, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	if userID != "" {
		updates["user_id"] = userID
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
