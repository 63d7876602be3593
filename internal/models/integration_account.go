package models

import "time"

// IntegrationAccount links one dashboard user to one external provider account.
// Note: Column names use camelCase to match the Prisma/frontend schema
type IntegrationAccount struct {
	ID                   string     `gorm:"column:id;primaryKey"`
	UserID               string     `gorm:"column:userId"`
	ExternalAccountID    string     `gorm:"column:externalAccountId"`
	ProviderID           string     `gorm:"column:providerId"`
	AccessToken          *string    `gorm:"column:accessToken"`
	RefreshToken         *string    `gorm:"column:refreshToken"`
	AccessTokenExpiresAt *time.Time `gorm:"column:accessTokenExpiresAt"`
	Active               bool       `gorm:"column:active"`
	LastSyncedAt         *time.Time `gorm:"column:lastSyncedAt"`
	DisconnectedAt       *time.Time `gorm:"column:disconnectedAt"`
	RetentionDays        int        `gorm:"column:retentionDays"`
	CreatedAt            time.Time  `gorm:"column:createdAt"`
	UpdatedAt            time.Time  `gorm:"column:updatedAt"`
}

// TableName specifies the table name for GORM
func (IntegrationAccount) TableName() string {
	return "integration_account"
}

// RetentionDeadline returns the date after which archived data for a
// disconnected account may be hard-deleted, or nil while the account is
// still connected or has no retention window configured.
func (a *IntegrationAccount) RetentionDeadline() *time.Time {
	if a.DisconnectedAt == nil || a.RetentionDays <= 0 {
		return nil
	}
	deadline := a.DisconnectedAt.AddDate(0, 0, a.RetentionDays)
	return &deadline
}
