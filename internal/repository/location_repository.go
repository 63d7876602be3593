package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vantora/listings-worker/internal/models"
	"gorm.io/gorm"
)

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Upsert inserts or updates a location keyed by the provider resource id.
// Returns true when a new row was created.
func (r *LocationRepository) Upsert(ctx context.Context, loc *models.Location) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Location{}).
		Where("id = ?", loc.ID).
		Updates(map[string]interface{}{
			"accountId":   loc.AccountID,
			"name":        loc.Name,
			"address":     loc.Address,
			"phoneNumber": loc.PhoneNumber,
			"websiteUrl":  loc.WebsiteURL,
			"category":    loc.Category,
			"updatedAt":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update location: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}

	loc.CreatedAt = now
	loc.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(loc).Error; err != nil {
		return false, fmt.Errorf("failed to create location: %w", err)
	}
	return true, nil
}

// ListIDsByAccount returns the provider location ids stored for an account.
// Child phases iterate these, so the locations phase must run first.
func (r *LocationRepository) ListIDsByAccount(ctx context.Context, accountID string) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).Model(&models.Location{}).
		Where(`"accountId" = ? AND "isArchived" = ?`, accountID, false).
		Order("id ASC").
		Pluck("id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list location ids: %w", result.Error)
	}
	return ids, nil
}

// ArchiveByAccount flags all of an account's locations as archived.
// Called on disconnect; rows survive until the retention sweep.
func (r *LocationRepository) ArchiveByAccount(ctx context.Context, accountID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Location{}).
		Where(`"accountId" = ? AND "isArchived" = ?`, accountID, false).
		Updates(map[string]interface{}{
			"isArchived": true,
			"archivedAt": at,
			"updatedAt":  time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to archive locations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteArchived hard-deletes archived locations for an account whose
// archive timestamp is before the cutoff. Children must go first.
func (r *LocationRepository) DeleteArchived(ctx context.Context, accountID string, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where(`"accountId" = ? AND "isArchived" = ? AND "archivedAt" < ?`, accountID, true, before).
		Delete(&models.Location{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete archived locations: %w", result.Error)
	}
	return result.RowsAffected, nil
}
