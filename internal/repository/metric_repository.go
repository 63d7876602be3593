package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vantora/listings-worker/internal/models"
	"gorm.io/gorm"
)

// MetricRepository stores performance metrics and search keyword rows
// produced by the performance and keywords sync phases.
type MetricRepository struct {
	db *gorm.DB
}

func NewMetricRepository(db *gorm.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// UpsertMetric inserts or updates one metric data point, keyed by
// (locationId, metric, date).
func (r *MetricRepository) UpsertMetric(ctx context.Context, m *models.LocationMetric) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.LocationMetric{}).
		Where(`"locationId" = ? AND metric = ? AND date = ?`, m.LocationID, m.Metric, m.Date).
		Updates(map[string]interface{}{
			"value":     m.Value,
			"updatedAt": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update metric: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return false, fmt.Errorf("failed to create metric: %w", err)
	}
	return true, nil
}

// UpsertKeyword inserts or updates one monthly keyword row, keyed by
// (locationId, keyword, month).
func (r *MetricRepository) UpsertKeyword(ctx context.Context, k *models.SearchKeyword) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.SearchKeyword{}).
		Where(`"locationId" = ? AND keyword = ? AND month = ?`, k.LocationID, k.Keyword, k.Month).
		Updates(map[string]interface{}{
			"impressions": k.Impressions,
			"updatedAt":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update keyword: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	k.CreatedAt = now
	k.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(k).Error; err != nil {
		return false, fmt.Errorf("failed to create keyword: %w", err)
	}
	return true, nil
}

// UpsertVideo inserts or updates one video upload mirror row
func (r *MetricRepository) UpsertVideo(ctx context.Context, v *models.VideoUpload) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.VideoUpload{}).
		Where("id = ?", v.ID).
		Updates(map[string]interface{}{
			"accountId":    v.AccountID,
			"title":        v.Title,
			"description":  v.Description,
			"thumbnailUrl": v.ThumbnailURL,
			"publishedAt":  v.PublishedAt,
			"updatedAt":    now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update video: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return false, fmt.Errorf("failed to create video: %w", err)
	}
	return true, nil
}
