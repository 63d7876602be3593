package models

import "time"

// RateLimitWindow is one durable fixed-window counter row, keyed by user id.
// Count is reset when the current time passes ResetAt; it never goes negative.
type RateLimitWindow struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Count     int       `gorm:"column:count"`
	ResetAt   time.Time `gorm:"column:reset_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (RateLimitWindow) TableName() string {
	return "rate_limit_window"
}
