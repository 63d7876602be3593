package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vantora/listings-worker/internal/models"
)

type mockSyncLogStore struct {
	entries  []*models.SyncLogEntry
	finished map[string]models.SyncStatus
	counts   map[string]models.CountMap
	lastErrs map[string]*string
}

func newMockSyncLogStore() *mockSyncLogStore {
	return &mockSyncLogStore{
		finished: make(map[string]models.SyncStatus),
		counts:   make(map[string]models.CountMap),
		lastErrs: make(map[string]*string),
	}
}

func (m *mockSyncLogStore) Start(ctx context.Context, accountID string, phase models.SyncPhase) (*models.SyncLogEntry, error) {
	entry := &models.SyncLogEntry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Phase:     phase,
		Status:    models.SyncStatusStarted,
		StartedAt: time.Now(),
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *mockSyncLogStore) Finish(ctx context.Context, entryID string, status models.SyncStatus, counts models.CountMap, lastError *string) error {
	m.finished[entryID] = status
	m.counts[entryID] = counts
	m.lastErrs[entryID] = lastError
	return nil
}

type mockTokenSource struct {
	token        string
	refreshCalls int
	refreshErr   error
}

func (m *mockTokenSource) GetValidAccessToken(ctx context.Context, accountID string) (string, error) {
	return m.token, nil
}

func (m *mockTokenSource) Refresh(ctx context.Context, accountID string) (string, error) {
	m.refreshCalls++
	if m.refreshErr != nil {
		return "", m.refreshErr
	}
	m.token = m.token + "-refreshed"
	return m.token, nil
}

type mockAccountReader struct{}

func (m *mockAccountReader) GetByID(ctx context.Context, accountID string) (*models.IntegrationAccount, error) {
	return &models.IntegrationAccount{ID: accountID, ExternalAccountID: "ext-" + accountID}, nil
}

type mockLocationStore struct {
	existing map[string]bool
	listIDs  []string
}

func (m *mockLocationStore) Upsert(ctx context.Context, loc *models.Location) (bool, error) {
	if m.existing == nil {
		m.existing = make(map[string]bool)
	}
	created := !m.existing[loc.ID]
	m.existing[loc.ID] = true
	return created, nil
}

func (m *mockLocationStore) ListIDsByAccount(ctx context.Context, accountID string) ([]string, error) {
	return m.listIDs, nil
}

type mockReviewStore struct {
	existing map[string]bool
}

func (m *mockReviewStore) Upsert(ctx context.Context, review *models.Review) (bool, error) {
	if m.existing == nil {
		m.existing = make(map[string]bool)
	}
	created := !m.existing[review.ID]
	m.existing[review.ID] = true
	return created, nil
}

type mockContentStore struct{}

func (m *mockContentStore) UpsertQuestion(ctx context.Context, q *models.Question) (bool, error) {
	return true, nil
}

func (m *mockContentStore) UpsertMedia(ctx context.Context, media *models.Media) (bool, error) {
	return true, nil
}

type mockMetricStore struct{}

func (m *mockMetricStore) UpsertMetric(ctx context.Context, metric *models.LocationMetric) (bool, error) {
	return true, nil
}

func (m *mockMetricStore) UpsertKeyword(ctx context.Context, k *models.SearchKeyword) (bool, error) {
	return true, nil
}

func (m *mockMetricStore) UpsertVideo(ctx context.Context, v *models.VideoUpload) (bool, error) {
	return true, nil
}

// fakeProvider answers every listing call with empty pages unless a
// specific func is set.
type fakeProvider struct {
	listLocationsFunc func(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error)
	listReviewsFunc   func(ctx context.Context, accessToken, locationID, pageToken string) (*ReviewPage, error)
}

func (f *fakeProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) ListLocations(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error) {
	if f.listLocationsFunc != nil {
		return f.listLocationsFunc(ctx, accessToken, externalAccountID, pageToken)
	}
	return &LocationPage{}, nil
}

func (f *fakeProvider) ListReviews(ctx context.Context, accessToken, locationID, pageToken string) (*ReviewPage, error) {
	if f.listReviewsFunc != nil {
		return f.listReviewsFunc(ctx, accessToken, locationID, pageToken)
	}
	return &ReviewPage{}, nil
}

func (f *fakeProvider) ListMedia(ctx context.Context, accessToken, locationID, pageToken string) (*MediaPage, error) {
	return &MediaPage{}, nil
}

func (f *fakeProvider) ListQuestions(ctx context.Context, accessToken, locationID, pageToken string) (*QuestionPage, error) {
	return &QuestionPage{}, nil
}

func (f *fakeProvider) FetchPerformance(ctx context.Context, accessToken, locationID string) ([]MetricPoint, error) {
	return nil, nil
}

func (f *fakeProvider) ListKeywords(ctx context.Context, accessToken, locationID, pageToken string) (*KeywordPage, error) {
	return &KeywordPage{}, nil
}

func newTestRunner(logs *mockSyncLogStore, tokens *mockTokenSource, provider ProviderClient, locations *mockLocationStore, reviews *mockReviewStore) *PhaseRunner {
	runner := NewPhaseRunner(
		&mockAccountReader{},
		logs,
		tokens,
		provider,
		nil,
		locations,
		reviews,
		&mockContentStore{},
		&mockMetricStore{},
	)
	runner.wait = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return runner
}

func TestRunPhase_UnknownPhase(t *testing.T) {
	runner := newTestRunner(newMockSyncLogStore(), &mockTokenSource{token: "t"}, &fakeProvider{}, &mockLocationStore{}, &mockReviewStore{})

	_, err := runner.RunPhase(context.Background(), "acc-1", models.SyncPhase("bogus"))
	if !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
}

func TestRunPhase_PaginationAccumulatesCounts(t *testing.T) {
	pages := map[string]*LocationPage{
		"": {
			Locations:     []LocationItem{{ID: "loc-1", Name: "One"}, {ID: "loc-2", Name: "Two"}},
			NextPageToken: "p2",
		},
		"p2": {
			Locations:     []LocationItem{{ID: "loc-3", Name: "Three"}, {ID: "", Name: "no id"}},
			NextPageToken: "p3",
		},
		"p3": {
			Locations: []LocationItem{{ID: "loc-4", Name: "Four"}},
		},
	}
	provider := &fakeProvider{
		listLocationsFunc: func(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error) {
			return pages[pageToken], nil
		},
	}
	logs := newMockSyncLogStore()
	runner := newTestRunner(logs, &mockTokenSource{token: "t"}, provider, &mockLocationStore{}, &mockReviewStore{})

	counts, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseLocations)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if counts["created"] != 4 {
		t.Errorf("expected 4 created across pages, got %d", counts["created"])
	}
	if counts["skipped"] != 1 {
		t.Errorf("expected 1 skipped for the item without an id, got %d", counts["skipped"])
	}
	if counts["total"] != 4 {
		t.Errorf("expected total 4, got %d", counts["total"])
	}

	if len(logs.entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(logs.entries))
	}
	if logs.finished[logs.entries[0].ID] != models.SyncStatusCompleted {
		t.Errorf("expected log entry completed, got %s", logs.finished[logs.entries[0].ID])
	}
}

func TestRunPhase_IdempotentRerunReportsUpdates(t *testing.T) {
	provider := &fakeProvider{
		listLocationsFunc: func(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error) {
			return &LocationPage{Locations: []LocationItem{{ID: "loc-1", Name: "One"}}}, nil
		},
	}
	locations := &mockLocationStore{}
	runner := newTestRunner(newMockSyncLogStore(), &mockTokenSource{token: "t"}, provider, locations, &mockReviewStore{})

	first, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseLocations)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseLocations)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if first["created"] != 1 || first["updated"] != 0 {
		t.Errorf("first run: expected 1 created, got %v", first)
	}
	if second["created"] != 0 || second["updated"] != 1 {
		t.Errorf("second run: expected 1 updated, got %v", second)
	}
	if first["total"] != second["total"] {
		t.Errorf("totals should match across reruns: %v vs %v", first, second)
	}
}

func TestRunPhase_UnauthorizedTriggersSingleRefresh(t *testing.T) {
	calls := 0
	provider := &fakeProvider{
		listLocationsFunc: func(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error) {
			calls++
			if accessToken == "stale" {
				return nil, ErrUnauthorized
			}
			return &LocationPage{Locations: []LocationItem{{ID: "loc-1"}}}, nil
		},
	}
	tokens := &mockTokenSource{token: "stale"}
	runner := newTestRunner(newMockSyncLogStore(), tokens, provider, &mockLocationStore{}, &mockReviewStore{})

	counts, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseLocations)
	if err != nil {
		t.Fatalf("expected refresh-and-retry to succeed, got %v", err)
	}
	if tokens.refreshCalls != 1 {
		t.Errorf("expected exactly one refresh, got %d", tokens.refreshCalls)
	}
	if calls != 2 {
		t.Errorf("expected 2 provider calls (reject then retry), got %d", calls)
	}
	if counts["created"] != 1 {
		t.Errorf("expected 1 created after retry, got %v", counts)
	}
}

func TestRunPhase_UnauthorizedAfterRefreshFails(t *testing.T) {
	provider := &fakeProvider{
		listLocationsFunc: func(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error) {
			return nil, ErrUnauthorized
		},
	}
	tokens := &mockTokenSource{token: "stale"}
	logs := newMockSyncLogStore()
	runner := newTestRunner(logs, tokens, provider, &mockLocationStore{}, &mockReviewStore{})

	_, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseLocations)
	if err == nil {
		t.Fatal("expected failure when the retried call is also rejected")
	}
	if tokens.refreshCalls != 1 {
		t.Errorf("expected exactly one refresh, got %d", tokens.refreshCalls)
	}

	entry := logs.entries[0]
	if logs.finished[entry.ID] != models.SyncStatusFailed {
		t.Errorf("expected log entry failed, got %s", logs.finished[entry.ID])
	}
	if logs.lastErrs[entry.ID] == nil || *logs.lastErrs[entry.ID] == "" {
		t.Error("expected last error recorded on the log entry")
	}
}

func TestRunPhase_TemporaryErrorRetriedWithinBudget(t *testing.T) {
	calls := 0
	provider := &fakeProvider{
		listLocationsFunc: func(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error) {
			calls++
			if calls < 3 {
				return nil, &ProviderError{StatusCode: 503, Message: "unavailable"}
			}
			return &LocationPage{Locations: []LocationItem{{ID: "loc-1"}}}, nil
		},
	}
	runner := newTestRunner(newMockSyncLogStore(), &mockTokenSource{token: "t"}, provider, &mockLocationStore{}, &mockReviewStore{})

	_, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseLocations)
	if err != nil {
		t.Fatalf("expected success on the third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 provider calls, got %d", calls)
	}
}

func TestRunPhase_CancellationCutsBackoffShort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	provider := &fakeProvider{
		listLocationsFunc: func(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error) {
			calls++
			cancel()
			return nil, &ProviderError{StatusCode: 503, Message: "unavailable"}
		},
	}
	runner := newTestRunner(newMockSyncLogStore(), &mockTokenSource{token: "t"}, provider, &mockLocationStore{}, &mockReviewStore{})
	runner.wait = waitFor

	start := time.Now()
	_, err := runner.RunPhase(ctx, "acc-1", models.PhaseLocations)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry after cancellation, got %d calls", calls)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("expected the backoff cut short, waited %s", elapsed)
	}
}

func TestRunPhase_NonTemporaryErrorNotRetried(t *testing.T) {
	calls := 0
	provider := &fakeProvider{
		listLocationsFunc: func(ctx context.Context, accessToken, externalAccountID, pageToken string) (*LocationPage, error) {
			calls++
			return nil, &ProviderError{StatusCode: 400, Message: "bad request"}
		},
	}
	runner := newTestRunner(newMockSyncLogStore(), &mockTokenSource{token: "t"}, provider, &mockLocationStore{}, &mockReviewStore{})

	_, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseLocations)
	if err == nil {
		t.Fatal("expected a 4xx to fail the phase")
	}
	if calls != 1 {
		t.Errorf("expected a single call for a non-temporary error, got %d", calls)
	}
}

func TestRunPhase_ReviewsIterateLocations(t *testing.T) {
	seen := make(map[string]int)
	provider := &fakeProvider{
		listReviewsFunc: func(ctx context.Context, accessToken, locationID, pageToken string) (*ReviewPage, error) {
			seen[locationID]++
			return &ReviewPage{Reviews: []ReviewItem{{ID: "rev-" + locationID, Rating: 4}}}, nil
		},
	}
	locations := &mockLocationStore{listIDs: []string{"loc-1", "loc-2"}}
	runner := newTestRunner(newMockSyncLogStore(), &mockTokenSource{token: "t"}, provider, locations, &mockReviewStore{})

	counts, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseReviews)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("expected reviews pulled for both locations, got %v", seen)
	}
	if counts["created"] != 2 {
		t.Errorf("expected 2 created, got %v", counts)
	}
}

func TestRunPhase_VideosSkippedWithoutClient(t *testing.T) {
	logs := newMockSyncLogStore()
	runner := newTestRunner(logs, &mockTokenSource{token: "t"}, &fakeProvider{}, &mockLocationStore{}, &mockReviewStore{})

	counts, err := runner.RunPhase(context.Background(), "acc-1", models.PhaseVideos)
	if err != nil {
		t.Fatalf("expected no error when the video client is absent, got %v", err)
	}
	if counts["total"] != 0 {
		t.Errorf("expected empty counts, got %v", counts)
	}
	if logs.finished[logs.entries[0].ID] != models.SyncStatusCompleted {
		t.Error("expected the log entry to complete even when skipped")
	}
}
