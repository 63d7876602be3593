package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vantora/listings-worker/internal/models"
)

type mockPhaseExecutor struct {
	runPhaseFunc func(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error)
	ran          []models.SyncPhase
}

func (m *mockPhaseExecutor) RunPhase(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error) {
	m.ran = append(m.ran, phase)
	if m.runPhaseFunc != nil {
		return m.runPhaseFunc(ctx, accountID, phase)
	}
	return models.CountMap{"total": 0}, nil
}

type mockSyncMarker struct {
	touched   int
	touchedAt time.Time
	done      chan struct{} // closed on first touch when set
}

func (m *mockSyncMarker) TouchLastSynced(ctx context.Context, accountID string, at time.Time) error {
	m.touched++
	m.touchedAt = at
	if m.done != nil {
		close(m.done)
	}
	return nil
}

func TestRunSync_FullRunFollowsPhaseOrder(t *testing.T) {
	executor := &mockPhaseExecutor{}
	marker := &mockSyncMarker{}
	orch := NewOrchestrator(executor, marker)

	result, err := orch.RunSync(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(executor.ran) != len(models.PhaseOrder) {
		t.Fatalf("expected %d phases, ran %d", len(models.PhaseOrder), len(executor.ran))
	}
	for i, phase := range models.PhaseOrder {
		if executor.ran[i] != phase {
			t.Errorf("phase %d: expected %s, ran %s", i, phase, executor.ran[i])
		}
	}
	if result.Failed != 0 {
		t.Errorf("expected no failures, got %d", result.Failed)
	}
	if marker.touched != 1 {
		t.Errorf("expected lastSyncedAt touched once, got %d", marker.touched)
	}
}

func TestRunSync_SubsetRunsInFixedOrder(t *testing.T) {
	executor := &mockPhaseExecutor{}
	orch := NewOrchestrator(executor, &mockSyncMarker{})

	// Requested out of order; execution must follow the fixed order.
	_, err := orch.RunSync(context.Background(), "acc-1", models.PhaseKeywords, models.PhaseLocations, models.PhaseReviews)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []models.SyncPhase{models.PhaseLocations, models.PhaseReviews, models.PhaseKeywords}
	if len(executor.ran) != len(want) {
		t.Fatalf("expected %d phases, ran %v", len(want), executor.ran)
	}
	for i := range want {
		if executor.ran[i] != want[i] {
			t.Errorf("phase %d: expected %s, ran %s", i, want[i], executor.ran[i])
		}
	}
}

func TestRunSync_UnknownPhaseRejectedBeforeRunning(t *testing.T) {
	executor := &mockPhaseExecutor{}
	marker := &mockSyncMarker{}
	orch := NewOrchestrator(executor, marker)

	_, err := orch.RunSync(context.Background(), "acc-1", models.PhaseLocations, models.SyncPhase("bogus"))
	if !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
	if len(executor.ran) != 0 {
		t.Errorf("no phase may run for a rejected request, ran %v", executor.ran)
	}
	if marker.touched != 0 {
		t.Error("lastSyncedAt must not be touched for a rejected request")
	}
	if orch.Running("acc-1") {
		t.Error("the slot must not be held after a rejected request")
	}
}

func TestStartSync_ConflictReportedSynchronously(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	executor := &mockPhaseExecutor{
		runPhaseFunc: func(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error) {
			if phase == models.PhaseLocations {
				close(started)
				<-release
			}
			return models.CountMap{}, nil
		},
	}
	marker := &mockSyncMarker{done: make(chan struct{})}
	orch := NewOrchestrator(executor, marker)

	if err := orch.StartSync("acc-1"); err != nil {
		t.Fatalf("first trigger should start, got %v", err)
	}
	<-started

	// The slot is held before StartSync returns, so a concurrent trigger
	// gets the conflict rather than a second accepted start.
	if err := orch.StartSync("acc-1", models.PhaseLocations); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress for the second trigger, got %v", err)
	}

	close(release)
	select {
	case <-marker.done:
	case <-time.After(time.Second):
		t.Fatal("expected the background run to finish")
	}
}

func TestStartSync_UnknownPhase(t *testing.T) {
	orch := NewOrchestrator(&mockPhaseExecutor{}, &mockSyncMarker{})

	if err := orch.StartSync("acc-1", models.SyncPhase("bogus")); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
	if orch.Running("acc-1") {
		t.Error("the slot must not be held after a rejected request")
	}
}

func TestRunSync_PhaseFailureDoesNotAbortSiblings(t *testing.T) {
	executor := &mockPhaseExecutor{
		runPhaseFunc: func(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error) {
			if phase == models.PhaseReviews {
				return models.CountMap{"total": 0}, errors.New("provider exploded")
			}
			return models.CountMap{"total": 1}, nil
		},
	}
	marker := &mockSyncMarker{}
	orch := NewOrchestrator(executor, marker)

	result, err := orch.RunSync(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("a phase failure must not fail the run, got %v", err)
	}

	if len(executor.ran) != len(models.PhaseOrder) {
		t.Errorf("expected all phases attempted, ran %d", len(executor.ran))
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failed phase, got %d", result.Failed)
	}
	for _, outcome := range result.Phases {
		if outcome.Phase == models.PhaseReviews {
			if outcome.Status != models.SyncStatusFailed {
				t.Errorf("reviews phase: expected failed, got %s", outcome.Status)
			}
			if outcome.Error == "" {
				t.Error("reviews phase: expected error message in outcome")
			}
		} else if outcome.Status != models.SyncStatusCompleted {
			t.Errorf("%s phase: expected completed, got %s", outcome.Phase, outcome.Status)
		}
	}
	if marker.touched != 1 {
		t.Error("lastSyncedAt should still be touched after partial failure")
	}
}

func TestRunSync_SingleFlightPerAccount(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	executor := &mockPhaseExecutor{
		runPhaseFunc: func(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error) {
			if phase == models.PhaseLocations {
				close(started)
				<-release
			}
			return models.CountMap{}, nil
		},
	}
	orch := NewOrchestrator(executor, &mockSyncMarker{})

	done := make(chan error, 1)
	go func() {
		_, err := orch.RunSync(context.Background(), "acc-1")
		done <- err
	}()

	<-started
	if !orch.Running("acc-1") {
		t.Error("expected the account to report running")
	}

	_, err := orch.RunSync(context.Background(), "acc-1", models.PhaseLocations)
	if !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress for the overlapping run, got %v", err)
	}

	// An unrelated account is not blocked.
	if _, err := orch.RunSync(context.Background(), "acc-2", models.PhaseReviews); err != nil {
		t.Errorf("expected a different account to proceed, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if orch.Running("acc-1") {
		t.Error("expected the slot released after the run")
	}
}

func TestRunSync_CancelledContextStopsRemainingPhases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	executor := &mockPhaseExecutor{
		runPhaseFunc: func(ctx context.Context, accountID string, phase models.SyncPhase) (models.CountMap, error) {
			if phase == models.PhaseLocations {
				cancel()
			}
			return models.CountMap{}, nil
		},
	}
	orch := NewOrchestrator(executor, &mockSyncMarker{})

	_, err := orch.RunSync(ctx, "acc-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(executor.ran) != 1 {
		t.Errorf("expected only the first phase to run, ran %v", executor.ran)
	}
}
