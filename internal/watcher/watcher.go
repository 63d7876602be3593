// Package watcher hosts the background loops: the periodic scan for
// accounts due a scheduled sync, and the daily retention sweep.
package watcher

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vantora/listings-worker/internal/config"
	"github.com/vantora/listings-worker/internal/models"
	"github.com/vantora/listings-worker/internal/retention"
	"github.com/vantora/listings-worker/internal/sync"
)

// AccountLister finds accounts due for a scheduled sync.
type AccountLister interface {
	ListDueForSync(ctx context.Context, cutoff time.Time, limit int) ([]models.IntegrationAccount, error)
}

// SyncRunner runs a full sync for one account.
type SyncRunner interface {
	RunSync(ctx context.Context, accountID string, phases ...models.SyncPhase) (*sync.SyncResult, error)
}

// Sweeper runs one retention sweep.
type Sweeper interface {
	Run(ctx context.Context) (*retention.SweepReport, error)
}

type Watcher struct {
	cfg      *config.Config
	accounts AccountLister
	syncs    SyncRunner
	sweeper  Sweeper
}

func New(cfg *config.Config, accounts AccountLister, syncs SyncRunner, sweeper Sweeper) *Watcher {
	return &Watcher{
		cfg:      cfg,
		accounts: accounts,
		syncs:    syncs,
		sweeper:  sweeper,
	}
}

// Start begins the polling loop and the cron schedule; it blocks until
// the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	log.Println("Starting watcher for scheduled syncs and retention sweeps...")

	c := cron.New()
	_, err := c.AddFunc(w.cfg.RetentionCronSpec, func() {
		log.Println("Running scheduled retention sweep...")
		if _, err := w.sweeper.Run(ctx); err != nil {
			log.Printf("Scheduled retention sweep failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	// Catch up accounts that fell due while the worker was down
	if err := w.processDueAccounts(ctx); err != nil {
		log.Printf("Warning: failed to process due accounts on startup: %v", err)
	}

	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Watcher shutting down...")
			return ctx.Err()
		case <-ticker.C:
			if err := w.processDueAccounts(ctx); err != nil {
				log.Printf("Error processing due accounts: %v", err)
			}
		}
	}
}

// processDueAccounts runs a full sync for each active account whose last
// sync is older than the configured interval. Accounts run one at a
// time here; manual triggers for other accounts still run concurrently
// through the orchestrator.
func (w *Watcher) processDueAccounts(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(w.cfg.SyncIntervalMinutes) * time.Minute)
	accounts, err := w.accounts.ListDueForSync(ctx, cutoff, w.cfg.SyncBatchSize)
	if err != nil {
		return err
	}

	if len(accounts) == 0 {
		return nil
	}

	log.Printf("Found %d account(s) due for sync", len(accounts))

	for _, account := range accounts {
		result, err := w.syncs.RunSync(ctx, account.ID)
		if err != nil {
			if errors.Is(err, sync.ErrSyncInProgress) {
				continue
			}
			log.Printf("Scheduled sync failed for account %s: %v", account.ID, err)
			continue
		}
		log.Printf("Scheduled sync finished for account %s: %d phase(s), %d failed",
			account.ID, len(result.Phases), result.Failed)
	}

	return nil
}
