package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vantora/listings-worker/internal/models"
	"gorm.io/gorm"
)

// ContentRepository handles the remaining external-resource mirrors that
// share the same upsert/archive/delete shape: posts, questions and media.
type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// UpsertPost inserts or updates a post keyed by the provider post id
func (r *ContentRepository) UpsertPost(ctx context.Context, post *models.Post) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", post.ID).
		Updates(map[string]interface{}{
			"accountId":    post.AccountID,
			"locationId":   post.LocationID,
			"summary":      post.Summary,
			"callToAction": post.CallToAct,
			"state":        post.State,
			"updatedAt":    now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update post: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}
	post.CreatedAt = now
	post.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return false, fmt.Errorf("failed to create post: %w", err)
	}
	return true, nil
}

// UpsertQuestion inserts or updates a question keyed by the provider question id
func (r *ContentRepository) UpsertQuestion(ctx context.Context, q *models.Question) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("id = ?", q.ID).
		Updates(map[string]interface{}{
			"accountId":   q.AccountID,
			"locationId":  q.LocationID,
			"text":        q.Text,
			"authorName":  q.AuthorName,
			"answerText":  q.AnswerText,
			"answerCount": q.AnswerCount,
			"updatedAt":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update question: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}
	q.CreatedAt = now
	q.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(q).Error; err != nil {
		return false, fmt.Errorf("failed to create question: %w", err)
	}
	return true, nil
}

// UpsertMedia inserts or updates a media item keyed by the provider media id
func (r *ContentRepository) UpsertMedia(ctx context.Context, m *models.Media) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Media{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"accountId":    m.AccountID,
			"locationId":   m.LocationID,
			"mediaFormat":  m.MediaFormat,
			"sourceUrl":    m.SourceURL,
			"thumbnailUrl": m.ThumbnailURL,
			"updatedAt":    now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update media: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return false, fmt.Errorf("failed to create media: %w", err)
	}
	return true, nil
}

// ArchiveByAccount flags an account's posts, questions and media as archived
func (r *ContentRepository) ArchiveByAccount(ctx context.Context, accountID string, at time.Time) error {
	updates := map[string]interface{}{
		"isArchived": true,
		"archivedAt": at,
		"updatedAt":  time.Now(),
	}
	for _, model := range []interface{}{&models.Post{}, &models.Question{}, &models.Media{}} {
		result := r.db.WithContext(ctx).Model(model).
			Where(`"accountId" = ? AND "isArchived" = ?`, accountID, false).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to archive content: %w", result.Error)
		}
	}
	return nil
}

// DeleteArchivedQuestions hard-deletes archived questions before the cutoff
func (r *ContentRepository) DeleteArchivedQuestions(ctx context.Context, accountID string, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where(`"accountId" = ? AND "isArchived" = ? AND "archivedAt" < ?`, accountID, true, before).
		Delete(&models.Question{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete archived questions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteArchivedPosts hard-deletes archived posts before the cutoff
func (r *ContentRepository) DeleteArchivedPosts(ctx context.Context, accountID string, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where(`"accountId" = ? AND "isArchived" = ? AND "archivedAt" < ?`, accountID, true, before).
		Delete(&models.Post{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete archived posts: %w", result.Error)
	}
	return result.RowsAffected, nil
}
