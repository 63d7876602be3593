package sync

import (
	"context"
	"time"

	"github.com/vantora/listings-worker/internal/models"
)

// DefaultLogWindow bounds how many recent log entries feed one snapshot.
const DefaultLogWindow = 100

// LogReader retrieves recent log entries, newest first.
type LogReader interface {
	RecentByAccount(ctx context.Context, accountID string, limit int) ([]models.SyncLogEntry, error)
}

// PhaseStatus is the reporter's view of one phase.
type PhaseStatus struct {
	Phase         models.SyncPhase  `json:"phase"`
	Status        models.SyncStatus `json:"status"`
	LastStartedAt *time.Time        `json:"lastStartedAt,omitempty"`
	LastEndedAt   *time.Time        `json:"lastEndedAt,omitempty"`
	LastCounts    models.CountMap   `json:"lastCounts,omitempty"`
	LastError     *string           `json:"lastError,omitempty"`
	AvgDurationMs int64             `json:"avgDurationMs"`
}

// StatusSnapshot is a point-in-time aggregate of an account's sync state.
type StatusSnapshot struct {
	AccountID            string        `json:"accountId"`
	PerPhase             []PhaseStatus `json:"perPhase"`
	EstimatedRemainingMs int64         `json:"estimatedRemainingMs"`
	GeneratedAt          time.Time     `json:"generatedAt"`
}

// StatusReporter aggregates sync log entries into per-phase status with a
// rolling average duration and a heuristic remaining-time estimate.
type StatusReporter struct {
	logs      LogReader
	logWindow int
}

func NewStatusReporter(logs LogReader) *StatusReporter {
	return &StatusReporter{logs: logs, logWindow: DefaultLogWindow}
}

// Status builds a snapshot from the most recent bounded window of log
// entries. The latest entry per phase is chosen by max started_at, so
// wall-clock skew between writers only costs accuracy, never an error.
func (s *StatusReporter) Status(ctx context.Context, accountID string) (*StatusSnapshot, error) {
	entries, err := s.logs.RecentByAccount(ctx, accountID, s.logWindow)
	if err != nil {
		return nil, err
	}

	type phaseAgg struct {
		latest        *models.SyncLogEntry
		totalDuration time.Duration
		completed     int
	}
	agg := make(map[models.SyncPhase]*phaseAgg)

	for i := range entries {
		entry := &entries[i]
		a, ok := agg[entry.Phase]
		if !ok {
			a = &phaseAgg{}
			agg[entry.Phase] = a
		}
		if a.latest == nil || entry.StartedAt.After(a.latest.StartedAt) {
			a.latest = entry
		}
		if entry.Status == models.SyncStatusCompleted && entry.EndedAt != nil {
			a.totalDuration += entry.Duration()
			a.completed++
		}
	}

	snapshot := &StatusSnapshot{
		AccountID:   accountID,
		GeneratedAt: time.Now(),
	}

	for _, phase := range models.PhaseOrder {
		a, ok := agg[phase]
		if !ok {
			continue
		}

		var avgMs int64
		if a.completed > 0 {
			avgMs = (a.totalDuration / time.Duration(a.completed)).Milliseconds()
		}

		startedAt := a.latest.StartedAt
		status := PhaseStatus{
			Phase:         phase,
			Status:        a.latest.Status,
			LastStartedAt: &startedAt,
			LastEndedAt:   a.latest.EndedAt,
			LastCounts:    a.latest.ItemCounts,
			LastError:     a.latest.LastError,
			AvgDurationMs: avgMs,
		}
		snapshot.PerPhase = append(snapshot.PerPhase, status)

		// A phase whose latest entry is still open is believed running;
		// its rolling average feeds the remaining-time estimate.
		if a.latest.Status == models.SyncStatusStarted {
			snapshot.EstimatedRemainingMs += avgMs
		}
	}

	return snapshot, nil
}
