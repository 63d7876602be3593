package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vantora/listings-worker/internal/models"
	"gorm.io/gorm"
)

type AutomationRepository struct {
	db *gorm.DB
}

func NewAutomationRepository(db *gorm.DB) *AutomationRepository {
	return &AutomationRepository{db: db}
}

// GetSettings retrieves the automation settings row for an account,
// creating a default row on first access. Pass an empty accountID for the
// tenant-wide default row.
func (r *AutomationRepository) GetSettings(ctx context.Context, accountID string) (*models.AutomationSettings, error) {
	var settings models.AutomationSettings
	query := r.db.WithContext(ctx)
	if accountID == "" {
		query = query.Where(`"accountId" IS NULL`)
	} else {
		query = query.Where(`"accountId" = ?`, accountID)
	}
	result := query.First(&settings)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return r.createDefault(ctx, accountID)
		}
		return nil, fmt.Errorf("failed to get automation settings: %w", result.Error)
	}
	return &settings, nil
}

func (r *AutomationRepository) createDefault(ctx context.Context, accountID string) (*models.AutomationSettings, error) {
	now := time.Now()
	settings := models.AutomationSettings{
		ID:             uuid.New().String(),
		Enabled:        false,
		ReplyTone:      "friendly",
		MinRating:      3,
		PostingCadence: "weekly",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if accountID != "" {
		settings.AccountID = &accountID
	}
	if err := r.db.WithContext(ctx).Create(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create default automation settings: %w", err)
	}
	return &settings, nil
}

// SetEnabled flips the enabled flag on a settings row
func (r *AutomationRepository) SetEnabled(ctx context.Context, settingsID string, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&models.AutomationSettings{}).
		Where("id = ?", settingsID).
		Updates(map[string]interface{}{
			"enabled":   enabled,
			"updatedAt": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update automation settings: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("automation settings %s not found", settingsID)
	}
	return nil
}
