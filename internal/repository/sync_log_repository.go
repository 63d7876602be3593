package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vantora/listings-worker/internal/models"
	"gorm.io/gorm"
)

type SyncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Start creates a new log entry with status started and returns it
func (r *SyncLogRepository) Start(ctx context.Context, accountID string, phase models.SyncPhase) (*models.SyncLogEntry, error) {
	now := time.Now()
	entry := models.SyncLogEntry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Phase:     phase,
		Status:    models.SyncStatusStarted,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create sync log entry: %w", err)
	}
	return &entry, nil
}

// Finish sets the terminal status, counts and error detail for an entry.
// The ended_at guard keeps finished entries immutable.
func (r *SyncLogRepository) Finish(ctx context.Context, entryID string, status models.SyncStatus, counts models.CountMap, lastError *string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.SyncLogEntry{}).
		Where("id = ? AND ended_at IS NULL", entryID).
		Updates(map[string]interface{}{
			"status":      status,
			"ended_at":    now,
			"item_counts": counts,
			"last_error":  lastError,
			"updated_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish sync log entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("sync log entry %s already finished or missing", entryID)
	}
	return nil
}

// RecentByAccount retrieves the most recent log entries for an account,
// newest first, capped at limit.
func (r *SyncLogRepository) RecentByAccount(ctx context.Context, accountID string, limit int) ([]models.SyncLogEntry, error) {
	var entries []models.SyncLogEntry
	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("started_at DESC").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query sync log entries: %w", result.Error)
	}
	return entries, nil
}
