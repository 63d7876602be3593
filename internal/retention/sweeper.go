// Package retention hard-deletes archived data for disconnected accounts
// once their retention window has elapsed, children before parents.
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vantora/listings-worker/internal/models"
)

// AccountSource lists accounts eligible for sweeping.
type AccountSource interface {
	ListDisconnected(ctx context.Context) ([]models.IntegrationAccount, error)
}

// Purger deletes archived rows of one resource type for an account.
// Both the review and the location repositories satisfy it.
type Purger interface {
	DeleteArchived(ctx context.Context, accountID string, before time.Time) (int64, error)
}

// ContentPurger deletes archived questions and posts.
type ContentPurger interface {
	DeleteArchivedQuestions(ctx context.Context, accountID string, before time.Time) (int64, error)
	DeleteArchivedPosts(ctx context.Context, accountID string, before time.Time) (int64, error)
}

// SweepReport summarizes one sweep invocation.
type SweepReport struct {
	AccountsChecked  int      `json:"accountsChecked"`
	AccountsSkipped  int      `json:"accountsSkipped"`
	ReviewsDeleted   int64    `json:"reviewsDeleted"`
	QuestionsDeleted int64    `json:"questionsDeleted"`
	PostsDeleted     int64    `json:"postsDeleted"`
	LocationsDeleted int64    `json:"locationsDeleted"`
	Errors           []string `json:"errors,omitempty"`
}

// Sweeper is the scheduled, idempotent retention cleanup job.
type Sweeper struct {
	accounts  AccountSource
	reviews   Purger
	content   ContentPurger
	locations Purger
	now       func() time.Time
}

func NewSweeper(accounts AccountSource, reviews Purger, content ContentPurger, locations Purger) *Sweeper {
	return &Sweeper{
		accounts:  accounts,
		reviews:   reviews,
		content:   content,
		locations: locations,
		now:       time.Now,
	}
}

// Run sweeps every disconnected account past its retention deadline.
// Child deletions (reviews, questions, posts) are independent of each
// other, but locations are only deleted once all three child steps
// succeeded in this pass; otherwise they wait for the next invocation.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	accounts, err := s.accounts.ListDisconnected(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list disconnected accounts: %w", err)
	}

	report := &SweepReport{}
	for i := range accounts {
		account := &accounts[i]
		report.AccountsChecked++

		deadline := account.RetentionDeadline()
		if deadline == nil || s.now().Before(*deadline) {
			report.AccountsSkipped++
			continue
		}

		s.sweepAccount(ctx, account, *deadline, report)
	}

	log.Printf("Retention sweep: checked=%d skipped=%d reviews=%d questions=%d posts=%d locations=%d errors=%d",
		report.AccountsChecked, report.AccountsSkipped, report.ReviewsDeleted,
		report.QuestionsDeleted, report.PostsDeleted, report.LocationsDeleted, len(report.Errors))

	return report, nil
}

func (s *Sweeper) sweepAccount(ctx context.Context, account *models.IntegrationAccount, deadline time.Time, report *SweepReport) {
	childrenOK := true

	if n, err := s.reviews.DeleteArchived(ctx, account.ID, deadline); err != nil {
		childrenOK = false
		report.Errors = append(report.Errors, fmt.Sprintf("account %s reviews: %v", account.ID, err))
	} else {
		report.ReviewsDeleted += n
	}

	if n, err := s.content.DeleteArchivedQuestions(ctx, account.ID, deadline); err != nil {
		childrenOK = false
		report.Errors = append(report.Errors, fmt.Sprintf("account %s questions: %v", account.ID, err))
	} else {
		report.QuestionsDeleted += n
	}

	if n, err := s.content.DeleteArchivedPosts(ctx, account.ID, deadline); err != nil {
		childrenOK = false
		report.Errors = append(report.Errors, fmt.Sprintf("account %s posts: %v", account.ID, err))
	} else {
		report.PostsDeleted += n
	}

	if !childrenOK {
		// Locations wait for the next pass so no child row is orphaned
		log.Printf("Skipping location deletion for account %s: child deletion failed this pass", account.ID)
		return
	}

	if n, err := s.locations.DeleteArchived(ctx, account.ID, deadline); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("account %s locations: %v", account.ID, err))
	} else {
		report.LocationsDeleted += n
	}
}
