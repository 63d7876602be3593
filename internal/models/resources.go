package models

import "time"

// Local mirrors of external provider resources. Rows are keyed by the
// provider's resource id so repeated syncs upsert instead of duplicating.
// Column names use camelCase to match the Prisma/frontend schema.

type Location struct {
	ID          string     `gorm:"column:id;primaryKey"` // provider location resource id
	AccountID   string     `gorm:"column:accountId"`
	Name        string     `gorm:"column:name"`
	Address     string     `gorm:"column:address"`
	PhoneNumber string     `gorm:"column:phoneNumber"`
	WebsiteURL  string     `gorm:"column:websiteUrl"`
	Category    string     `gorm:"column:category"`
	IsArchived  bool       `gorm:"column:isArchived"`
	ArchivedAt  *time.Time `gorm:"column:archivedAt"`
	CreatedAt   time.Time  `gorm:"column:createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updatedAt"`
}

func (Location) TableName() string { return "location" }

// ReplyAutomationStatus tracks where a review sits in the auto-reply pipeline.
type ReplyAutomationStatus string

const (
	ReplyPending  ReplyAutomationStatus = "pending"
	ReplyQueued   ReplyAutomationStatus = "queued"
	ReplyDrafting ReplyAutomationStatus = "drafting"
	ReplyPosted   ReplyAutomationStatus = "posted"
)

type Review struct {
	ID               string                `gorm:"column:id;primaryKey"` // provider review id
	AccountID        string                `gorm:"column:accountId"`
	LocationID       string                `gorm:"column:locationId"`
	ReviewerName     string                `gorm:"column:reviewerName"`
	Rating           int                   `gorm:"column:rating"`
	Comment          string                `gorm:"column:comment"`
	ReplyText        *string               `gorm:"column:replyText"`
	AutomationStatus ReplyAutomationStatus `gorm:"column:automationStatus"`
	PostedAt         time.Time             `gorm:"column:postedAt"`
	IsArchived       bool                  `gorm:"column:isArchived"`
	ArchivedAt       *time.Time            `gorm:"column:archivedAt"`
	CreatedAt        time.Time             `gorm:"column:createdAt"`
	UpdatedAt        time.Time             `gorm:"column:updatedAt"`
}

func (Review) TableName() string { return "review" }

type Post struct {
	ID         string     `gorm:"column:id;primaryKey"`
	AccountID  string     `gorm:"column:accountId"`
	LocationID string     `gorm:"column:locationId"`
	Summary    string     `gorm:"column:summary"`
	CallToAct  string     `gorm:"column:callToAction"`
	State      string     `gorm:"column:state"`
	IsArchived bool       `gorm:"column:isArchived"`
	ArchivedAt *time.Time `gorm:"column:archivedAt"`
	CreatedAt  time.Time  `gorm:"column:createdAt"`
	UpdatedAt  time.Time  `gorm:"column:updatedAt"`
}

func (Post) TableName() string { return "post" }

type Question struct {
	ID          string     `gorm:"column:id;primaryKey"`
	AccountID   string     `gorm:"column:accountId"`
	LocationID  string     `gorm:"column:locationId"`
	Text        string     `gorm:"column:text"`
	AuthorName  string     `gorm:"column:authorName"`
	AnswerText  *string    `gorm:"column:answerText"`
	AnswerCount int        `gorm:"column:answerCount"`
	IsArchived  bool       `gorm:"column:isArchived"`
	ArchivedAt  *time.Time `gorm:"column:archivedAt"`
	CreatedAt   time.Time  `gorm:"column:createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updatedAt"`
}

func (Question) TableName() string { return "question" }

type Media struct {
	ID           string     `gorm:"column:id;primaryKey"`
	AccountID    string     `gorm:"column:accountId"`
	LocationID   string     `gorm:"column:locationId"`
	MediaFormat  string     `gorm:"column:mediaFormat"`
	SourceURL    string     `gorm:"column:sourceUrl"`
	ThumbnailURL string     `gorm:"column:thumbnailUrl"`
	IsArchived   bool       `gorm:"column:isArchived"`
	ArchivedAt   *time.Time `gorm:"column:archivedAt"`
	CreatedAt    time.Time  `gorm:"column:createdAt"`
	UpdatedAt    time.Time  `gorm:"column:updatedAt"`
}

func (Media) TableName() string { return "media" }

// LocationMetric is one performance data point for a location (views,
// searches, call clicks and similar), one row per metric per day.
type LocationMetric struct {
	ID         string    `gorm:"column:id;primaryKey"`
	AccountID  string    `gorm:"column:accountId"`
	LocationID string    `gorm:"column:locationId"`
	Metric     string    `gorm:"column:metric"`
	Date       time.Time `gorm:"column:date"`
	Value      int64     `gorm:"column:value"`
	CreatedAt  time.Time `gorm:"column:createdAt"`
	UpdatedAt  time.Time `gorm:"column:updatedAt"`
}

func (LocationMetric) TableName() string { return "location_metric" }

// SearchKeyword is one monthly search-impression row for a location.
type SearchKeyword struct {
	ID          string    `gorm:"column:id;primaryKey"`
	AccountID   string    `gorm:"column:accountId"`
	LocationID  string    `gorm:"column:locationId"`
	Keyword     string    `gorm:"column:keyword"`
	Month       string    `gorm:"column:month"` // YYYY-MM
	Impressions int64     `gorm:"column:impressions"`
	CreatedAt   time.Time `gorm:"column:createdAt"`
	UpdatedAt   time.Time `gorm:"column:updatedAt"`
}

func (SearchKeyword) TableName() string { return "search_keyword" }

// VideoUpload mirrors one upload on the connected video platform channel.
type VideoUpload struct {
	ID           string    `gorm:"column:id;primaryKey"` // platform video id
	AccountID    string    `gorm:"column:accountId"`
	Title        string    `gorm:"column:title"`
	Description  string    `gorm:"column:description"`
	ThumbnailURL string    `gorm:"column:thumbnailUrl"`
	PublishedAt  time.Time `gorm:"column:publishedAt"`
	CreatedAt    time.Time `gorm:"column:createdAt"`
	UpdatedAt    time.Time `gorm:"column:updatedAt"`
}

func (VideoUpload) TableName() string { return "video_upload" }
