package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vantora/listings-worker/internal/models"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID retrieves an integration account by ID
func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (*models.IntegrationAccount, error) {
	var account models.IntegrationAccount
	result := r.db.WithContext(ctx).First(&account, "id = ?", accountID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", result.Error)
	}
	return &account, nil
}

// UpdateTokens updates access token, refresh token, and the access token expiry.
// Concurrent refreshes for the same account are tolerated as last write wins.
func (r *AccountRepository) UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, accessTokenExpiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.IntegrationAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"accessToken":          accessToken,
			"refreshToken":         refreshToken,
			"accessTokenExpiresAt": accessTokenExpiresAt,
			"updatedAt":            time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	return nil
}

// TouchLastSynced records the completion time of a sync run
func (r *AccountRepository) TouchLastSynced(ctx context.Context, accountID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.IntegrationAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"lastSyncedAt": at,
			"updatedAt":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update last synced: %w", result.Error)
	}
	return nil
}

// Disconnect soft-deactivates an account. Dependent rows are kept until the
// retention sweep hard-deletes them after the retention window. Calling it
// again for an already-disconnected account is a no-op success, so a failed
// archive pass can be retried by re-invoking disconnect; the original
// disconnect timestamp is kept either way.
func (r *AccountRepository) Disconnect(ctx context.Context, accountID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.IntegrationAccount{}).
		Where("id = ? AND active = ?", accountID, true).
		Updates(map[string]interface{}{
			"active":         false,
			"disconnectedAt": now,
			"updatedAt":      now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to disconnect account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		account, err := r.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account.DisconnectedAt != nil {
			return nil
		}
		return ErrAccountNotFound
	}
	return nil
}

// ListDueForSync retrieves active accounts whose last sync is older than the
// cutoff (or that never synced), oldest first so new accounts get priority.
func (r *AccountRepository) ListDueForSync(ctx context.Context, cutoff time.Time, limit int) ([]models.IntegrationAccount, error) {
	var accounts []models.IntegrationAccount
	result := r.db.WithContext(ctx).
		Where(`active = ? AND ("lastSyncedAt" IS NULL OR "lastSyncedAt" < ?)`, true, cutoff).
		Order(`"lastSyncedAt" ASC NULLS FIRST`).
		Limit(limit).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list accounts due for sync: %w", result.Error)
	}
	return accounts, nil
}

// ListDisconnected retrieves accounts with a disconnect timestamp and a
// configured retention window, for the retention sweep.
func (r *AccountRepository) ListDisconnected(ctx context.Context) ([]models.IntegrationAccount, error) {
	var accounts []models.IntegrationAccount
	result := r.db.WithContext(ctx).
		Where(`"disconnectedAt" IS NOT NULL AND "retentionDays" > 0`).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list disconnected accounts: %w", result.Error)
	}
	return accounts, nil
}
