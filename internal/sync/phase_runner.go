package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/vantora/listings-worker/internal/models"
)

const (
	// DefaultMaxPages caps pagination per resource so a runaway provider
	// listing cannot pin a phase forever.
	DefaultMaxPages = 20

	// DefaultMaxAttempts bounds retries of a single provider call.
	DefaultMaxAttempts = 3

	retryBaseDelay = 500 * time.Millisecond
)

var ErrUnknownPhase = errors.New("unknown sync phase")

// SyncLogStore records phase executions.
type SyncLogStore interface {
	Start(ctx context.Context, accountID string, phase models.SyncPhase) (*models.SyncLogEntry, error)
	Finish(ctx context.Context, entryID string, status models.SyncStatus, counts models.CountMap, lastError *string) error
}

// TokenSource supplies valid access tokens for accounts.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, accountID string) (string, error)
	Refresh(ctx context.Context, accountID string) (string, error)
}

// AccountReader loads the account row a phase operates on.
type AccountReader interface {
	GetByID(ctx context.Context, accountID string) (*models.IntegrationAccount, error)
}

type LocationStore interface {
	Upsert(ctx context.Context, loc *models.Location) (bool, error)
	ListIDsByAccount(ctx context.Context, accountID string) ([]string, error)
}

type ReviewStore interface {
	Upsert(ctx context.Context, review *models.Review) (bool, error)
}

type ContentStore interface {
	UpsertQuestion(ctx context.Context, q *models.Question) (bool, error)
	UpsertMedia(ctx context.Context, m *models.Media) (bool, error)
}

type MetricStore interface {
	UpsertMetric(ctx context.Context, m *models.LocationMetric) (bool, error)
	UpsertKeyword(ctx context.Context, k *models.SearchKeyword) (bool, error)
	UpsertVideo(ctx context.Context, v *models.VideoUpload) (bool, error)
}

// PhaseRunner executes one named phase of data pull for one account,
// writing exactly one sync log entry per run. A failed phase never marks
// sibling phases failed.
type PhaseRunner struct {
	accounts  AccountReader
	logs      SyncLogStore
	tokens    TokenSource
	provider  ProviderClient
	video     VideoClient
	locations LocationStore
	reviews   ReviewStore
	content   ContentStore
	metrics   MetricStore

	maxPages    int
	maxAttempts int
	wait        func(ctx context.Context, d time.Duration) error // overridable in tests
}

func NewPhaseRunner(
	accounts AccountReader,
	logs SyncLogStore,
	tokens TokenSource,
	provider ProviderClient,
	video VideoClient,
	locations LocationStore,
	reviews ReviewStore,
	content ContentStore,
	metrics MetricStore,
) *PhaseRunner {
	return &PhaseRunner{
		accounts:    accounts,
		logs:        logs,
		tokens:      tokens,
		provider:    provider,
		video:       video,
		locations:   locations,
		reviews:     reviews,
		content:     content,
		metrics:     metrics,
		maxPages:    DefaultMaxPages,
		maxAttempts: DefaultMaxAttempts,
		wait:        waitFor,
	}
}

// waitFor blocks for the given delay or until the context is cancelled,
// whichever comes first.
func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// counter accumulates created/updated/skipped tallies for one phase.
type counter struct {
	created int
	updated int
	skipped int
}

func (c *counter) record(created bool) {
	if created {
		c.created++
	} else {
		c.updated++
	}
}

func (c *counter) counts() models.CountMap {
	return models.CountMap{
		"created": c.created,
		"updated": c.updated,
		"skipped": c.skipped,
		"total":   c.created + c.updated,
	}
}

// RunPhase pulls one phase for one account. The returned counts are also
// persisted on the log entry; the entry always ends up with a non-null
// ended_at, success or failure.
func (r *PhaseRunner) RunPhase(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error) {
	if !models.ValidPhase(phase) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}

	entry, err := r.logs.Start(ctx, accountID, phase)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync log entry: %w", err)
	}

	log.Printf("Running phase %s for account %s", phase, accountID)

	counts, runErr := r.runPhase(ctx, accountID, phase)
	if runErr != nil {
		msg := runErr.Error()
		if finishErr := r.logs.Finish(ctx, entry.ID, models.SyncStatusFailed, counts, &msg); finishErr != nil {
			log.Printf("Failed to finish log entry %s: %v", entry.ID, finishErr)
		}
		return counts, runErr
	}

	if finishErr := r.logs.Finish(ctx, entry.ID, models.SyncStatusCompleted, counts, nil); finishErr != nil {
		log.Printf("Failed to finish log entry %s: %v", entry.ID, finishErr)
	}

	log.Printf("Phase %s completed for account %s: %v", phase, accountID, counts)
	return counts, nil
}

func (r *PhaseRunner) runPhase(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error) {
	account, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	token, err := r.tokens.GetValidAccessToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	c := &counter{}
	switch phase {
	case models.PhaseLocations:
		err = r.pullLocations(ctx, account, &token, c)
	case models.PhaseReviews:
		err = r.pullReviews(ctx, account, &token, c)
	case models.PhaseMedia:
		err = r.pullMedia(ctx, account, &token, c)
	case models.PhaseQuestions:
		err = r.pullQuestions(ctx, account, &token, c)
	case models.PhasePerformance:
		err = r.pullPerformance(ctx, account, &token, c)
	case models.PhaseKeywords:
		err = r.pullKeywords(ctx, account, &token, c)
	case models.PhaseVideos:
		err = r.pullVideos(ctx, account, &token, c)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}

	return c.counts(), err
}

// callProvider invokes one provider call with bounded, jittered backoff.
// A 401 triggers exactly one token refresh and one extra retry of the
// failed call; that retry does not count against the attempt budget.
func (r *PhaseRunner) callProvider(ctx context.Context, accountID string, token *string, call func(accessToken string) error) error {
	refreshed := false
	attempt := 0
	for {
		err := call(*token)
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrUnauthorized) {
			if refreshed {
				return fmt.Errorf("provider still rejects token after refresh: %w", err)
			}
			refreshed = true
			newToken, refreshErr := r.tokens.Refresh(ctx, accountID)
			if refreshErr != nil {
				return refreshErr
			}
			*token = newToken
			continue
		}

		attempt++
		if attempt >= r.maxAttempts || !isTemporary(err) {
			return err
		}

		delay := backoffDelay(attempt)
		log.Printf("Provider call failed (attempt %d/%d), retrying in %s: %v", attempt, r.maxAttempts, delay, err)

		// A cancelled context cuts the backoff short
		if waitErr := r.wait(ctx, delay); waitErr != nil {
			return waitErr
		}
	}
}

// isTemporary reports whether an error is worth a backoff retry.
// Provider 5xx responses and transport-level failures qualify.
func isTemporary(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary()
	}
	// Non-HTTP errors from the transport (timeouts, resets) are treated
	// as transient; malformed responses surface as ProviderError 4xx.
	return true
}

// backoffDelay returns base*2^(attempt-1) with ±50% jitter
func backoffDelay(attempt int) time.Duration {
	base := retryBaseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base))) - base/2
	return base + jitter
}

func (r *PhaseRunner) pullLocations(ctx context.Context, account *models.IntegrationAccount, token *string, c *counter) error {
	pageToken := ""
	for page := 0; page < r.maxPages; page++ {
		var resp *LocationPage
		err := r.callProvider(ctx, account.ID, token, func(accessToken string) error {
			var callErr error
			resp, callErr = r.provider.ListLocations(ctx, accessToken, account.ExternalAccountID, pageToken)
			return callErr
		})
		if err != nil {
			return err
		}

		for _, item := range resp.Locations {
			if item.ID == "" {
				c.skipped++
				continue
			}
			created, err := r.locations.Upsert(ctx, &models.Location{
				ID:          item.ID,
				AccountID:   account.ID,
				Name:        item.Name,
				Address:     item.Address,
				PhoneNumber: item.PhoneNumber,
				WebsiteURL:  item.WebsiteURL,
				Category:    item.Category,
			})
			if err != nil {
				return err
			}
			c.record(created)
		}

		if resp.NextPageToken == "" {
			return nil
		}
		pageToken = resp.NextPageToken
	}
	return nil
}

func (r *PhaseRunner) pullReviews(ctx context.Context, account *models.IntegrationAccount, token *string, c *counter) error {
	locationIDs, err := r.locations.ListIDsByAccount(ctx, account.ID)
	if err != nil {
		return err
	}

	for _, locationID := range locationIDs {
		pageToken := ""
		for page := 0; page < r.maxPages; page++ {
			var resp *ReviewPage
			err := r.callProvider(ctx, account.ID, token, func(accessToken string) error {
				var callErr error
				resp, callErr = r.provider.ListReviews(ctx, accessToken, locationID, pageToken)
				return callErr
			})
			if err != nil {
				return err
			}

			for _, item := range resp.Reviews {
				if item.ID == "" {
					c.skipped++
					continue
				}
				created, err := r.reviews.Upsert(ctx, &models.Review{
					ID:           item.ID,
					AccountID:    account.ID,
					LocationID:   locationID,
					ReviewerName: item.ReviewerName,
					Rating:       item.Rating,
					Comment:      item.Comment,
					ReplyText:    item.ReplyText,
					PostedAt:     item.PostedAt,
				})
				if err != nil {
					return err
				}
				c.record(created)
			}

			if resp.NextPageToken == "" {
				break
			}
			pageToken = resp.NextPageToken
		}
	}
	return nil
}

func (r *PhaseRunner) pullMedia(ctx context.Context, account *models.IntegrationAccount, token *string, c *counter) error {
	locationIDs, err := r.locations.ListIDsByAccount(ctx, account.ID)
	if err != nil {
		return err
	}

	for _, locationID := range locationIDs {
		pageToken := ""
		for page := 0; page < r.maxPages; page++ {
			var resp *MediaPage
			err := r.callProvider(ctx, account.ID, token, func(accessToken string) error {
				var callErr error
				resp, callErr = r.provider.ListMedia(ctx, accessToken, locationID, pageToken)
				return callErr
			})
			if err != nil {
				return err
			}

			for _, item := range resp.Media {
				if item.ID == "" {
					c.skipped++
					continue
				}
				created, err := r.content.UpsertMedia(ctx, &models.Media{
					ID:           item.ID,
					AccountID:    account.ID,
					LocationID:   locationID,
					MediaFormat:  item.MediaFormat,
					SourceURL:    item.SourceURL,
					ThumbnailURL: item.ThumbnailURL,
				})
				if err != nil {
					return err
				}
				c.record(created)
			}

			if resp.NextPageToken == "" {
				break
			}
			pageToken = resp.NextPageToken
		}
	}
	return nil
}

func (r *PhaseRunner) pullQuestions(ctx context.Context, account *models.IntegrationAccount, token *string, c *counter) error {
	locationIDs, err := r.locations.ListIDsByAccount(ctx, account.ID)
	if err != nil {
		return err
	}

	for _, locationID := range locationIDs {
		pageToken := ""
		for page := 0; page < r.maxPages; page++ {
			var resp *QuestionPage
			err := r.callProvider(ctx, account.ID, token, func(accessToken string) error {
				var callErr error
				resp, callErr = r.provider.ListQuestions(ctx, accessToken, locationID, pageToken)
				return callErr
			})
			if err != nil {
				return err
			}

			for _, item := range resp.Questions {
				if item.ID == "" {
					c.skipped++
					continue
				}
				created, err := r.content.UpsertQuestion(ctx, &models.Question{
					ID:          item.ID,
					AccountID:   account.ID,
					LocationID:  locationID,
					Text:        item.Text,
					AuthorName:  item.AuthorName,
					AnswerText:  item.AnswerText,
					AnswerCount: item.AnswerCount,
				})
				if err != nil {
					return err
				}
				c.record(created)
			}

			if resp.NextPageToken == "" {
				break
			}
			pageToken = resp.NextPageToken
		}
	}
	return nil
}

func (r *PhaseRunner) pullPerformance(ctx context.Context, account *models.IntegrationAccount, token *string, c *counter) error {
	locationIDs, err := r.locations.ListIDsByAccount(ctx, account.ID)
	if err != nil {
		return err
	}

	for _, locationID := range locationIDs {
		var points []MetricPoint
		err := r.callProvider(ctx, account.ID, token, func(accessToken string) error {
			var callErr error
			points, callErr = r.provider.FetchPerformance(ctx, accessToken, locationID)
			return callErr
		})
		if err != nil {
			return err
		}

		for _, point := range points {
			if point.Metric == "" {
				c.skipped++
				continue
			}
			created, err := r.metrics.UpsertMetric(ctx, &models.LocationMetric{
				AccountID:  account.ID,
				LocationID: locationID,
				Metric:     point.Metric,
				Date:       point.Date,
				Value:      point.Value,
			})
			if err != nil {
				return err
			}
			c.record(created)
		}
	}
	return nil
}

func (r *PhaseRunner) pullKeywords(ctx context.Context, account *models.IntegrationAccount, token *string, c *counter) error {
	locationIDs, err := r.locations.ListIDsByAccount(ctx, account.ID)
	if err != nil {
		return err
	}

	for _, locationID := range locationIDs {
		pageToken := ""
		for page := 0; page < r.maxPages; page++ {
			var resp *KeywordPage
			err := r.callProvider(ctx, account.ID, token, func(accessToken string) error {
				var callErr error
				resp, callErr = r.provider.ListKeywords(ctx, accessToken, locationID, pageToken)
				return callErr
			})
			if err != nil {
				return err
			}

			for _, row := range resp.Keywords {
				if row.Keyword == "" {
					c.skipped++
					continue
				}
				created, err := r.metrics.UpsertKeyword(ctx, &models.SearchKeyword{
					AccountID:   account.ID,
					LocationID:  locationID,
					Keyword:     row.Keyword,
					Month:       row.Month,
					Impressions: row.Impressions,
				})
				if err != nil {
					return err
				}
				c.record(created)
			}

			if resp.NextPageToken == "" {
				break
			}
			pageToken = resp.NextPageToken
		}
	}
	return nil
}

func (r *PhaseRunner) pullVideos(ctx context.Context, account *models.IntegrationAccount, token *string, c *counter) error {
	if r.video == nil {
		log.Printf("Video client not configured, skipping videos phase for account %s", account.ID)
		return nil
	}

	pageToken := ""
	for page := 0; page < r.maxPages; page++ {
		var resp *VideoPage
		err := r.callProvider(ctx, account.ID, token, func(accessToken string) error {
			var callErr error
			resp, callErr = r.video.ListUploads(ctx, accessToken, pageToken)
			return callErr
		})
		if err != nil {
			return err
		}

		for _, item := range resp.Videos {
			if item.ID == "" {
				c.skipped++
				continue
			}
			created, err := r.metrics.UpsertVideo(ctx, &models.VideoUpload{
				ID:           item.ID,
				AccountID:    account.ID,
				Title:        item.Title,
				Description:  item.Description,
				ThumbnailURL: item.ThumbnailURL,
				PublishedAt:  item.PublishedAt,
			})
			if err != nil {
				return err
			}
			c.record(created)
		}

		if resp.NextPageToken == "" {
			return nil
		}
		pageToken = resp.NextPageToken
	}
	return nil
}
