package sync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnauthorized is returned by provider clients when the listing
// platform rejects the access token. The phase runner reacts with exactly
// one token refresh and one retry of the failed call.
var ErrUnauthorized = errors.New("provider rejected access token")

// ProviderError is a non-auth failure from the external provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether the call is worth retrying with backoff.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode >= 500
}

type TokenRefreshResult struct {
	AccessToken  string
	ExpiresAt    time.Time
	RefreshToken string // May be same or new
}

type LocationItem struct {
	ID          string
	Name        string
	Address     string
	PhoneNumber string
	WebsiteURL  string
	Category    string
}

type LocationPage struct {
	Locations     []LocationItem
	NextPageToken string
}

type ReviewItem struct {
	ID           string
	ReviewerName string
	Rating       int
	Comment      string
	ReplyText    *string
	PostedAt     time.Time
}

type ReviewPage struct {
	Reviews       []ReviewItem
	NextPageToken string
}

type MediaItem struct {
	ID           string
	MediaFormat  string
	SourceURL    string
	ThumbnailURL string
}

type MediaPage struct {
	Media         []MediaItem
	NextPageToken string
}

type QuestionItem struct {
	ID          string
	Text        string
	AuthorName  string
	AnswerText  *string
	AnswerCount int
}

type QuestionPage struct {
	Questions     []QuestionItem
	NextPageToken string
}

// MetricPoint is one performance data point for a location
type MetricPoint struct {
	Metric string
	Date   time.Time
	Value  int64
}

type KeywordRow struct {
	Keyword     string
	Month       string
	Impressions int64
}

type KeywordPage struct {
	Keywords      []KeywordRow
	NextPageToken string
}

type VideoItem struct {
	ID           string
	Title        string
	Description  string
	ThumbnailURL string
	PublishedAt  time.Time
}

type VideoPage struct {
	Videos        []VideoItem
	NextPageToken string
}

// ProviderClient is the listing-platform API surface the sync engine
// consumes. Listing calls follow page tokens until exhausted.
type ProviderClient interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error)
	ListLocations(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error)
	ListReviews(ctx context.Context, accessToken, locationID, pageToken string) (*ReviewPage, error)
	ListMedia(ctx context.Context, accessToken, locationID, pageToken string) (*MediaPage, error)
	ListQuestions(ctx context.Context, accessToken, locationID, pageToken string) (*QuestionPage, error)
	FetchPerformance(ctx context.Context, accessToken, locationID string) ([]MetricPoint, error)
	ListKeywords(ctx context.Context, accessToken, locationID, pageToken string) (*KeywordPage, error)
}

// VideoClient lists the uploads of the connected video platform channel.
type VideoClient interface {
	ListUploads(ctx context.Context, accessToken, pageToken string) (*VideoPage, error)
}
