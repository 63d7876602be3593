package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SyncPhase is one named category of data pulled from the provider.
type SyncPhase string

const (
	PhaseLocations   SyncPhase = "locations"
	PhaseReviews     SyncPhase = "reviews"
	PhaseMedia       SyncPhase = "media"
	PhaseQuestions   SyncPhase = "questions"
	PhasePerformance SyncPhase = "performance"
	PhaseKeywords    SyncPhase = "keywords"
	PhaseVideos      SyncPhase = "videos"
)

// PhaseOrder is the fixed execution order for a full sync. Locations run
// first because every other phase references location ids.
var PhaseOrder = []SyncPhase{
	PhaseLocations,
	PhaseReviews,
	PhaseMedia,
	PhaseQuestions,
	PhasePerformance,
	PhaseKeywords,
	PhaseVideos,
}

// ValidPhase reports whether p is a known sync phase.
func ValidPhase(p SyncPhase) bool {
	for _, known := range PhaseOrder {
		if p == known {
			return true
		}
	}
	return false
}

type SyncStatus string

const (
	SyncStatusStarted   SyncStatus = "started"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// CountMap stores per-metric item counts as a JSONB column.
type CountMap map[string]int

func (c CountMap) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *CountMap) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return fmt.Errorf("unsupported type for CountMap: %T", value)
		}
	}
	return json.Unmarshal(b, c)
}

// SyncLogEntry is an append-only record of one phase execution. Created at
// phase start, finished exactly once when the phase ends; never mutated
// after EndedAt is set.
type SyncLogEntry struct {
	ID         string     `gorm:"column:id;primaryKey"`
	AccountID  string     `gorm:"column:account_id"`
	Phase      SyncPhase  `gorm:"column:phase"`
	Status     SyncStatus `gorm:"column:status"`
	StartedAt  time.Time  `gorm:"column:started_at"`
	EndedAt    *time.Time `gorm:"column:ended_at"`
	ItemCounts CountMap   `gorm:"column:item_counts;type:jsonb"`
	LastError  *string    `gorm:"column:last_error"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SyncLogEntry) TableName() string {
	return "sync_log"
}

// Duration returns the elapsed phase time, or zero while still running.
func (e *SyncLogEntry) Duration() time.Duration {
	if e.EndedAt == nil {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}
