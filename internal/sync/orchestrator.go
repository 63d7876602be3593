package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/vantora/listings-worker/internal/models"
)

// ErrSyncInProgress is returned when a sync is triggered for an account
// that already has one running.
var ErrSyncInProgress = errors.New("sync already in progress for account")

// PhaseExecutor runs one phase for one account.
type PhaseExecutor interface {
	RunPhase(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error)
}

// SyncMarker records sync completion on the account row.
type SyncMarker interface {
	TouchLastSynced(ctx context.Context, accountID string, at time.Time) error
}

// PhaseOutcome is the result of one phase inside a sync run.
type PhaseOutcome struct {
	Phase  models.SyncPhase  `json:"phase"`
	Status models.SyncStatus `json:"status"`
	Counts models.CountMap   `json:"counts,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// SyncResult aggregates the per-phase outcomes of one run.
type SyncResult struct {
	AccountID string         `json:"accountId"`
	Phases    []PhaseOutcome `json:"phases"`
	Failed    int            `json:"failed"`
}

// Orchestrator sequences phase executions for an account. Phases run
// sequentially within one account to bound provider rate-limit exposure;
// different accounts may run concurrently. A phase failure does not abort
// the remaining phases.
type Orchestrator struct {
	runner   PhaseExecutor
	accounts SyncMarker

	mu      stdsync.Mutex
	running map[string]bool
}

func NewOrchestrator(runner PhaseExecutor, accounts SyncMarker) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		accounts: accounts,
		running:  make(map[string]bool),
	}
}

// Running reports whether a sync is currently executing for the account.
func (o *Orchestrator) Running(accountID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[accountID]
}

func (o *Orchestrator) acquire(accountID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[accountID] {
		return false
	}
	o.running[accountID] = true
	return true
}

func (o *Orchestrator) release(accountID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, accountID)
}

// RunSync executes the given phases in the fixed dependency order; with no
// phases given it runs the full ordered list. Unknown phase names are
// rejected before any log entry is written. Partial failure still
// advances the dashboard state: completed phases keep their data.
func (o *Orchestrator) RunSync(ctx context.Context, accountID string, phases ...models.SyncPhase) (*SyncResult, error) {
	phases, err := orderPhases(phases)
	if err != nil {
		return nil, err
	}

	if !o.acquire(accountID) {
		return nil, ErrSyncInProgress
	}
	defer o.release(accountID)

	return o.run(ctx, accountID, phases)
}

// StartSync acquires the account's slot synchronously and runs the sync in
// a background goroutine, detached from the caller's context. Callers get
// ErrSyncInProgress (or ErrUnknownPhase) before the call returns, so two
// concurrent triggers cannot both be told the sync started.
func (o *Orchestrator) StartSync(accountID string, phases ...models.SyncPhase) error {
	phases, err := orderPhases(phases)
	if err != nil {
		return err
	}

	if !o.acquire(accountID) {
		return ErrSyncInProgress
	}

	go func() {
		defer o.release(accountID)
		result, err := o.run(context.Background(), accountID, phases)
		if err != nil {
			log.Printf("Background sync failed for account %s: %v", accountID, err)
			return
		}
		log.Printf("Background sync finished for account %s: %d phase(s), %d failed",
			accountID, len(result.Phases), result.Failed)
	}()

	return nil
}

func (o *Orchestrator) run(ctx context.Context, accountID string, phases []models.SyncPhase) (*SyncResult, error) {
	result := &SyncResult{AccountID: accountID}
	for _, phase := range phases {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		counts, err := o.runner.RunPhase(ctx, accountID, phase)
		outcome := PhaseOutcome{Phase: phase, Status: models.SyncStatusCompleted, Counts: counts}
		if err != nil {
			outcome.Status = models.SyncStatusFailed
			outcome.Error = err.Error()
			result.Failed++
			log.Printf("Phase %s failed for account %s: %v", phase, accountID, err)
		}
		result.Phases = append(result.Phases, outcome)
	}

	if err := o.accounts.TouchLastSynced(ctx, accountID, time.Now()); err != nil {
		log.Printf("Failed to record last sync time for account %s: %v", accountID, err)
	}

	return result, nil
}

// orderPhases sorts the requested subset into the fixed dependency order,
// so locations always precede the phases that reference location ids. An
// empty request means the full ordered list; unknown names are an error.
func orderPhases(requested []models.SyncPhase) ([]models.SyncPhase, error) {
	if len(requested) == 0 {
		return models.PhaseOrder, nil
	}
	want := make(map[models.SyncPhase]bool, len(requested))
	for _, p := range requested {
		if !models.ValidPhase(p) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, p)
		}
		want[p] = true
	}
	ordered := make([]models.SyncPhase, 0, len(requested))
	for _, p := range models.PhaseOrder {
		if want[p] {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}
