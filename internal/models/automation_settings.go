package models

import "time"

// AutomationSettings controls the auto-reply pipeline for one account.
// A row with a NULL accountId is the tenant-wide default.
// Note: Column names use camelCase to match the Prisma/frontend schema
type AutomationSettings struct {
	ID               string    `gorm:"column:id;primaryKey"`
	AccountID        *string   `gorm:"column:accountId"`
	Enabled          bool      `gorm:"column:enabled"`
	ReplyTone        string    `gorm:"column:replyTone"`
	MinRating        int       `gorm:"column:minRating"`
	PostingCadence   string    `gorm:"column:postingCadence"`
	CompetitorAlerts bool      `gorm:"column:competitorAlerts"`
	InsightsReports  bool      `gorm:"column:insightsReports"`
	CreatedAt        time.Time `gorm:"column:createdAt"`
	UpdatedAt        time.Time `gorm:"column:updatedAt"`
}

// TableName specifies the table name for GORM
func (AutomationSettings) TableName() string {
	return "automation_settings"
}
