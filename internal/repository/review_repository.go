package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vantora/listings-worker/internal/models"
	"gorm.io/gorm"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Upsert inserts or updates a review keyed by the provider review id.
// Returns true when a new row was created. The local automation fields
// (automationStatus) are never overwritten by a sync.
func (r *ReviewRepository) Upsert(ctx context.Context, review *models.Review) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Review{}).
		Where("id = ?", review.ID).
		Updates(map[string]interface{}{
			"accountId":    review.AccountID,
			"locationId":   review.LocationID,
			"reviewerName": review.ReviewerName,
			"rating":       review.Rating,
			"comment":      review.Comment,
			"replyText":    review.ReplyText,
			"postedAt":     review.PostedAt,
			"updatedAt":    now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update review: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}

	review.AutomationStatus = models.ReplyPending
	review.CreatedAt = now
	review.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		return false, fmt.Errorf("failed to create review: %w", err)
	}
	return true, nil
}

// GetByID retrieves a review by its provider id
func (r *ReviewRepository) GetByID(ctx context.Context, reviewID string) (*models.Review, error) {
	var review models.Review
	result := r.db.WithContext(ctx).First(&review, "id = ?", reviewID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("review %s not found", reviewID)
		}
		return nil, fmt.Errorf("failed to get review: %w", result.Error)
	}
	return &review, nil
}

// Enqueue marks unanswered reviews as queued for automated replies.
// Reviews that already carry a human reply are skipped.
func (r *ReviewRepository) Enqueue(ctx context.Context, reviewIDs []string) (int64, error) {
	if len(reviewIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.Review{}).
		Where(`id IN ? AND "replyText" IS NULL AND "automationStatus" = ?`, reviewIDs, models.ReplyPending).
		Updates(map[string]interface{}{
			"automationStatus": models.ReplyQueued,
			"updatedAt":        time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to enqueue reviews: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ClearAutomationQueue resets all in-flight queued reviews back to pending.
// Scoped to one account when accountID is non-empty, otherwise global.
func (r *ReviewRepository) ClearAutomationQueue(ctx context.Context, accountID string) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Review{}).
		Where(`"replyText" IS NULL AND "automationStatus" IN ?`,
			[]models.ReplyAutomationStatus{models.ReplyQueued, models.ReplyDrafting})
	if accountID != "" {
		query = query.Where(`"accountId" = ?`, accountID)
	}
	result := query.Updates(map[string]interface{}{
		"automationStatus": models.ReplyPending,
		"updatedAt":        time.Now(),
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear automation queue: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ArchiveByAccount flags all of an account's reviews as archived
func (r *ReviewRepository) ArchiveByAccount(ctx context.Context, accountID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Review{}).
		Where(`"accountId" = ? AND "isArchived" = ?`, accountID, false).
		Updates(map[string]interface{}{
			"isArchived": true,
			"archivedAt": at,
			"updatedAt":  time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to archive reviews: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteArchived hard-deletes archived reviews for an account before the cutoff
func (r *ReviewRepository) DeleteArchived(ctx context.Context, accountID string, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where(`"accountId" = ? AND "isArchived" = ? AND "archivedAt" < ?`, accountID, true, before).
		Delete(&models.Review{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete archived reviews: %w", result.Error)
	}
	return result.RowsAffected, nil
}
