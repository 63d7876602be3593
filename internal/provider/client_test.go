package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vantora/listings-worker/internal/sync"
)

func TestListLocations_MapsFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/ext-1/locations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"locations": [
				{
					"name": "locations/123",
					"title": "Espresso Corner",
					"storefrontAddress": "1 Main St",
					"primaryPhone": "+1 555 0100",
					"websiteUri": "https://espresso.example.com",
					"primaryCategory": "Cafe"
				}
			],
			"nextPageToken": "page-2"
		}`))
	}))
	defer server.Close()

	client := NewClient("id", "secret")
	client.SetBaseURL(server.URL)

	page, err := client.ListLocations(context.Background(), "token-1", "ext-1", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(page.Locations) != 1 {
		t.Fatalf("expected 1 location, got %d", len(page.Locations))
	}
	loc := page.Locations[0]
	if loc.ID != "locations/123" || loc.Name != "Espresso Corner" || loc.Category != "Cafe" {
		t.Errorf("unexpected mapping: %+v", loc)
	}
	if page.NextPageToken != "page-2" {
		t.Errorf("expected next page token, got %q", page.NextPageToken)
	}
}

func TestListReviews_StarRatingAndReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"reviews": [
				{
					"reviewId": "rev-1",
					"reviewer": {"displayName": "Dana"},
					"starRating": "FOUR",
					"comment": "Good coffee",
					"createTime": "2026-02-01T10:00:00Z",
					"reviewReply": {"comment": "Thanks Dana!"}
				},
				{
					"reviewId": "rev-2",
					"reviewer": {"displayName": "Sam"},
					"starRating": "ONE",
					"comment": "Too slow",
					"createTime": "2026-02-02T11:00:00Z"
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient("id", "secret")
	client.SetBaseURL(server.URL)

	page, err := client.ListReviews(context.Background(), "token-1", "locations/123", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(page.Reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(page.Reviews))
	}

	first := page.Reviews[0]
	if first.Rating != 4 {
		t.Errorf("expected FOUR mapped to 4, got %d", first.Rating)
	}
	if first.ReplyText == nil || *first.ReplyText != "Thanks Dana!" {
		t.Errorf("expected the reply text carried over, got %v", first.ReplyText)
	}
	if first.PostedAt.IsZero() {
		t.Error("expected createTime parsed")
	}

	second := page.Reviews[1]
	if second.Rating != 1 {
		t.Errorf("expected ONE mapped to 1, got %d", second.Rating)
	}
	if second.ReplyText != nil {
		t.Error("expected nil reply for an unanswered review")
	}
}

func TestDoGet_UnauthorizedMapsToSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient("id", "secret")
	client.SetBaseURL(server.URL)

	_, err := client.ListLocations(context.Background(), "stale", "ext-1", "")
	if !errors.Is(err, sync.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDoGet_ServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	client := NewClient("id", "secret")
	client.SetBaseURL(server.URL)

	_, err := client.ListReviews(context.Background(), "token-1", "locations/123", "")
	var pe *sync.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusServiceUnavailable || !pe.Temporary() {
		t.Errorf("expected a temporary 503, got %+v", pe)
	}
}

func TestDoGet_MalformedBodyIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewClient("id", "secret")
	client.SetBaseURL(server.URL)

	_, err := client.ListQuestions(context.Background(), "token-1", "locations/123", "")
	var pe *sync.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Temporary() {
		t.Error("a malformed 200 body must not be retried")
	}
}

func TestFetchPerformance_SkipsMalformedDates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"multiDailyMetricTimeSeries": [
				{
					"dailyMetric": "CALL_CLICKS",
					"datedValues": [
						{"date": "2026-02-01", "value": "7"},
						{"date": "bogus", "value": "9"},
						{"date": "2026-02-02", "value": "3"}
					]
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient("id", "secret")
	client.SetBaseURL(server.URL)

	points, err := client.FetchPerformance(context.Background(), "token-1", "locations/123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected the malformed date skipped, got %d points", len(points))
	}
	if points[0].Metric != "CALL_CLICKS" || points[0].Value != 7 {
		t.Errorf("unexpected first point: %+v", points[0])
	}
}

func TestRefreshAccessToken_KeepsUnrotatedRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse token form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("expected refresh_token grant, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	client := NewClient("id", "secret")
	client.SetTokenURL(server.URL)

	result, err := client.RefreshAccessToken(context.Background(), "keep-me")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.AccessToken != "fresh" {
		t.Errorf("expected the new access token, got %q", result.AccessToken)
	}
	if result.RefreshToken != "keep-me" {
		t.Errorf("expected the old refresh token kept, got %q", result.RefreshToken)
	}
	if result.ExpiresAt.IsZero() {
		t.Error("expected an expiry derived from expires_in")
	}
}
