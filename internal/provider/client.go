// Package provider implements the business-listing platform API client:
// the OAuth refresh grant plus the paginated per-phase listing endpoints
// the sync engine consumes.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/vantora/listings-worker/internal/sync"
)

const (
	DefaultBaseURL  = "https://businesslistings.googleapis.com/v4"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	pageSize = 50
)

type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	httpClient   *http.Client
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      DefaultBaseURL,
		tokenURL:     DefaultTokenURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBaseURL overrides the API base URL (used in tests)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// SetTokenURL overrides the OAuth token endpoint (used in tests)
func (c *Client) SetTokenURL(tokenURL string) {
	c.tokenURL = tokenURL
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token. The provider does not always rotate the refresh token; the old
// one is kept when no new one is returned.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*sync.TokenRefreshResult, error) {
	config := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: c.tokenURL,
		},
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
	}

	tokenSource := config.TokenSource(ctx, token)
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	result := &sync.TokenRefreshResult{
		AccessToken: newToken.AccessToken,
		ExpiresAt:   newToken.Expiry,
	}

	// Check if refresh token was rotated
	if newToken.RefreshToken != "" && newToken.RefreshToken != refreshToken {
		result.RefreshToken = newToken.RefreshToken
	} else {
		result.RefreshToken = refreshToken // Keep the same refresh token
	}

	return result, nil
}

// doGet performs one authenticated GET and decodes the JSON body into out.
// 401 maps to sync.ErrUnauthorized so the phase runner can refresh and
// retry once; other non-2xx statuses map to sync.ProviderError.
func (c *Client) doGet(ctx context.Context, accessToken, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return sync.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return &sync.ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &sync.ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}

func pageQuery(pageToken string) url.Values {
	query := url.Values{}
	query.Set("pageSize", fmt.Sprintf("%d", pageSize))
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	return query
}

func (c *Client) ListLocations(ctx context.Context, accessToken, externalAccountID, pageToken string) (*sync.LocationPage, error) {
	var resp struct {
		Locations []struct {
			Name            string `json:"name"` // resource id, e.g. locations/123
			Title           string `json:"title"`
			StorefrontAddr  string `json:"storefrontAddress"`
			PrimaryPhone    string `json:"primaryPhone"`
			WebsiteURI      string `json:"websiteUri"`
			PrimaryCategory string `json:"primaryCategory"`
		} `json:"locations"`
		NextPageToken string `json:"nextPageToken"`
	}

	path := fmt.Sprintf("/accounts/%s/locations", externalAccountID)
	if err := c.doGet(ctx, accessToken, path, pageQuery(pageToken), &resp); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}

	page := &sync.LocationPage{NextPageToken: resp.NextPageToken}
	for _, loc := range resp.Locations {
		page.Locations = append(page.Locations, sync.LocationItem{
			ID:          loc.Name,
			Name:        loc.Title,
			Address:     loc.StorefrontAddr,
			PhoneNumber: loc.PrimaryPhone,
			WebsiteURL:  loc.WebsiteURI,
			Category:    loc.PrimaryCategory,
		})
	}
	return page, nil
}

func (c *Client) ListReviews(ctx context.Context, accessToken, locationID, pageToken string) (*sync.ReviewPage, error) {
	var resp struct {
		Reviews []struct {
			ReviewID string `json:"reviewId"`
			Reviewer struct {
				DisplayName string `json:"displayName"`
			} `json:"reviewer"`
			StarRating string `json:"starRating"`
			Comment    string `json:"comment"`
			CreateTime string `json:"createTime"`
			Reply      *struct {
				Comment string `json:"comment"`
			} `json:"reviewReply"`
		} `json:"reviews"`
		NextPageToken string `json:"nextPageToken"`
	}

	path := fmt.Sprintf("/%s/reviews", locationID)
	if err := c.doGet(ctx, accessToken, path, pageQuery(pageToken), &resp); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	page := &sync.ReviewPage{NextPageToken: resp.NextPageToken}
	for _, rev := range resp.Reviews {
		item := sync.ReviewItem{
			ID:           rev.ReviewID,
			ReviewerName: rev.Reviewer.DisplayName,
			Rating:       starRatingValue(rev.StarRating),
			Comment:      rev.Comment,
			PostedAt:     parseProviderTime(rev.CreateTime),
		}
		if rev.Reply != nil {
			reply := rev.Reply.Comment
			item.ReplyText = &reply
		}
		page.Reviews = append(page.Reviews, item)
	}
	return page, nil
}

func (c *Client) ListMedia(ctx context.Context, accessToken, locationID, pageToken string) (*sync.MediaPage, error) {
	var resp struct {
		MediaItems []struct {
			Name         string `json:"name"`
			MediaFormat  string `json:"mediaFormat"`
			GoogleURL    string `json:"googleUrl"`
			ThumbnailURL string `json:"thumbnailUrl"`
		} `json:"mediaItems"`
		NextPageToken string `json:"nextPageToken"`
	}

	path := fmt.Sprintf("/%s/media", locationID)
	if err := c.doGet(ctx, accessToken, path, pageQuery(pageToken), &resp); err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}

	page := &sync.MediaPage{NextPageToken: resp.NextPageToken}
	for _, m := range resp.MediaItems {
		page.Media = append(page.Media, sync.MediaItem{
			ID:           m.Name,
			MediaFormat:  m.MediaFormat,
			SourceURL:    m.GoogleURL,
			ThumbnailURL: m.ThumbnailURL,
		})
	}
	return page, nil
}

func (c *Client) ListQuestions(ctx context.Context, accessToken, locationID, pageToken string) (*sync.QuestionPage, error) {
	var resp struct {
		Questions []struct {
			Name   string `json:"name"`
			Text   string `json:"text"`
			Author struct {
				DisplayName string `json:"displayName"`
			} `json:"author"`
			TopAnswer *struct {
				Text string `json:"text"`
			} `json:"topAnswer"`
			TotalAnswerCount int `json:"totalAnswerCount"`
		} `json:"questions"`
		NextPageToken string `json:"nextPageToken"`
	}

	path := fmt.Sprintf("/%s/questions", locationID)
	if err := c.doGet(ctx, accessToken, path, pageQuery(pageToken), &resp); err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	page := &sync.QuestionPage{NextPageToken: resp.NextPageToken}
	for _, q := range resp.Questions {
		item := sync.QuestionItem{
			ID:          q.Name,
			Text:        q.Text,
			AuthorName:  q.Author.DisplayName,
			AnswerCount: q.TotalAnswerCount,
		}
		if q.TopAnswer != nil {
			answer := q.TopAnswer.Text
			item.AnswerText = &answer
		}
		page.Questions = append(page.Questions, item)
	}
	return page, nil
}

func (c *Client) FetchPerformance(ctx context.Context, accessToken, locationID string) ([]sync.MetricPoint, error) {
	var resp struct {
		TimeSeries []struct {
			Metric string `json:"dailyMetric"`
			Points []struct {
				Date  string `json:"date"`
				Value int64  `json:"value,string"`
			} `json:"datedValues"`
		} `json:"multiDailyMetricTimeSeries"`
	}

	path := fmt.Sprintf("/%s/performance", locationID)
	if err := c.doGet(ctx, accessToken, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch performance: %w", err)
	}

	var points []sync.MetricPoint
	for _, series := range resp.TimeSeries {
		for _, p := range series.Points {
			date, err := time.Parse("2006-01-02", p.Date)
			if err != nil {
				continue // skip malformed dates rather than failing the phase
			}
			points = append(points, sync.MetricPoint{
				Metric: series.Metric,
				Date:   date,
				Value:  p.Value,
			})
		}
	}
	return points, nil
}

func (c *Client) ListKeywords(ctx context.Context, accessToken, locationID, pageToken string) (*sync.KeywordPage, error) {
	var resp struct {
		SearchKeywordsCounts []struct {
			SearchKeyword string `json:"searchKeyword"`
			Month         string `json:"month"`
			Value         int64  `json:"insightsValue,string"`
		} `json:"searchKeywordsCounts"`
		NextPageToken string `json:"nextPageToken"`
	}

	path := fmt.Sprintf("/%s/searchkeywords", locationID)
	if err := c.doGet(ctx, accessToken, path, pageQuery(pageToken), &resp); err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}

	page := &sync.KeywordPage{NextPageToken: resp.NextPageToken}
	for _, k := range resp.SearchKeywordsCounts {
		page.Keywords = append(page.Keywords, sync.KeywordRow{
			Keyword:     k.SearchKeyword,
			Month:       k.Month,
			Impressions: k.Value,
		})
	}
	return page, nil
}

// starRatingValue maps the provider's enum-style rating to an integer
func starRatingValue(rating string) int {
	switch rating {
	case "ONE":
		return 1
	case "TWO":
		return 2
	case "THREE":
		return 3
	case "FOUR":
		return 4
	case "FIVE":
		return 5
	}
	return 0
}

func parseProviderTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
