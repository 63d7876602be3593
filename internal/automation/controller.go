// Package automation drives the auto-reply pipeline state machine:
// pause/resume flip the enabled flag; reset additionally clears queued,
// not-yet-replied reviews back to pending.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vantora/listings-worker/internal/models"
)

type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionReset  Action = "reset"
)

var (
	ErrUnknownAction      = errors.New("unknown automation action")
	ErrAutomationDisabled = errors.New("automation is disabled for this account")
	ErrBelowRatingCutoff  = errors.New("review rating is below the auto-reply threshold")
)

// SettingsStore is the automation settings persistence.
type SettingsStore interface {
	GetSettings(ctx context.Context, accountID string) (*models.AutomationSettings, error)
	SetEnabled(ctx context.Context, settingsID string, enabled bool) error
}

// ReviewQueue is the slice of review persistence the controller needs.
type ReviewQueue interface {
	GetByID(ctx context.Context, reviewID string) (*models.Review, error)
	Enqueue(ctx context.Context, reviewIDs []string) (int64, error)
	ClearAutomationQueue(ctx context.Context, accountID string) (int64, error)
}

// TextGenerator is the opaque text-completion service.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ApplyResult reports the two-step outcome of an action. Settings updates
// and the queue clear hit different tables with no shared transaction, so
// reset can partially succeed; callers must check QueueCleared, not just
// the absence of an error.
type ApplyResult struct {
	Settings        *models.AutomationSettings `json:"settings"`
	SettingsUpdated bool                       `json:"settingsUpdated"`
	QueueCleared    bool                       `json:"queueCleared"`
	ClearedCount    int64                      `json:"clearedCount"`
	ClearError      string                     `json:"clearError,omitempty"`
}

type Controller struct {
	settings SettingsStore
	reviews  ReviewQueue
	texts    TextGenerator
}

func NewController(settings SettingsStore, reviews ReviewQueue, texts TextGenerator) *Controller {
	return &Controller{
		settings: settings,
		reviews:  reviews,
		texts:    texts,
	}
}

// Apply executes one state-machine action for an account (empty accountID
// targets the tenant default settings row).
func (c *Controller) Apply(ctx context.Context, action Action, accountID string) (*ApplyResult, error) {
	settings, err := c.settings.GetSettings(ctx, accountID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionPause:
		return c.setEnabled(ctx, settings, false)
	case ActionResume:
		return c.setEnabled(ctx, settings, true)
	case ActionReset:
		return c.reset(ctx, settings, accountID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func (c *Controller) setEnabled(ctx context.Context, settings *models.AutomationSettings, enabled bool) (*ApplyResult, error) {
	if err := c.settings.SetEnabled(ctx, settings.ID, enabled); err != nil {
		return nil, err
	}
	settings.Enabled = enabled
	return &ApplyResult{
		Settings:        settings,
		SettingsUpdated: true,
		QueueCleared:    true, // nothing to clear
	}, nil
}

// reset disables automation and clears in-flight queued reviews. The
// settings write always lands first; if the queue clear then fails, the
// result reports partial success so the caller can surface a warning and
// retry the clear, rather than a false full success.
func (c *Controller) reset(ctx context.Context, settings *models.AutomationSettings, accountID string) (*ApplyResult, error) {
	if err := c.settings.SetEnabled(ctx, settings.ID, false); err != nil {
		return nil, err
	}
	settings.Enabled = false

	result := &ApplyResult{
		Settings:        settings,
		SettingsUpdated: true,
	}

	cleared, err := c.reviews.ClearAutomationQueue(ctx, accountID)
	if err != nil {
		log.Printf("Automation reset for account %q: settings disabled but queue clear failed: %v", accountID, err)
		result.ClearError = err.Error()
		return result, nil
	}

	result.QueueCleared = true
	result.ClearedCount = cleared
	return result, nil
}

// EnqueueReplies queues the given reviews for automated reply generation.
// Reviews that already have a human reply are left untouched.
func (c *Controller) EnqueueReplies(ctx context.Context, accountID string, reviewIDs []string) (int64, error) {
	settings, err := c.settings.GetSettings(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !settings.Enabled {
		return 0, ErrAutomationDisabled
	}
	return c.reviews.Enqueue(ctx, reviewIDs)
}

// DraftReply generates a reply draft for one review, honoring the
// account's reply tone and minimum rating threshold.
func (c *Controller) DraftReply(ctx context.Context, reviewID string) (string, error) {
	review, err := c.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return "", err
	}

	settings, err := c.settings.GetSettings(ctx, review.AccountID)
	if err != nil {
		return "", err
	}
	if !settings.Enabled {
		return "", ErrAutomationDisabled
	}
	if review.Rating < settings.MinRating {
		return "", ErrBelowRatingCutoff
	}

	prompt := buildReplyPrompt(review, settings)
	draft, err := c.texts.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to draft reply: %w", err)
	}
	return draft, nil
}

func buildReplyPrompt(review *models.Review, settings *models.AutomationSettings) string {
	return fmt.Sprintf(
		"Write a %s reply from the business owner to this %d-star customer review. "+
			"Keep it under 80 words and do not promise refunds or discounts.\n\n"+
			"Reviewer: %s\nReview: %s",
		settings.ReplyTone, review.Rating, review.ReviewerName, review.Comment,
	)
}
