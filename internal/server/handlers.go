package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vantora/listings-worker/internal/automation"
	"github.com/vantora/listings-worker/internal/models"
	"github.com/vantora/listings-worker/internal/ratelimit"
	"github.com/vantora/listings-worker/internal/retention"
	"github.com/vantora/listings-worker/internal/sync"
)

const (
	defaultStreamInterval = 3 * time.Second
	defaultStreamBudget   = 30 * time.Second
)

// StatusSource serves point-in-time sync status snapshots.
type StatusSource interface {
	Status(ctx context.Context, accountID string) (*sync.StatusSnapshot, error)
}

// SyncRunner triggers a sync run for an account. StartSync acquires the
// account's single-flight slot before returning, so conflict detection is
// race-free.
type SyncRunner interface {
	StartSync(accountID string, phases ...models.SyncPhase) error
}

// AutomationControl is the auto-reply controller surface.
type AutomationControl interface {
	Apply(ctx context.Context, action automation.Action, accountID string) (*automation.ApplyResult, error)
	EnqueueReplies(ctx context.Context, accountID string, reviewIDs []string) (int64, error)
	DraftReply(ctx context.Context, reviewID string) (string, error)
}

// RetentionRunner executes one retention sweep.
type RetentionRunner interface {
	Run(ctx context.Context) (*retention.SweepReport, error)
}

// Disconnector soft-disconnects an account and archives its data.
type Disconnector interface {
	Disconnect(ctx context.Context, accountID string) error
}

// Archiver flags an account's mirrored rows as archived on disconnect.
type Archiver interface {
	ArchiveAccountData(ctx context.Context, accountID string, at time.Time) error
}

type Handler struct {
	status     StatusSource
	syncs      SyncRunner
	automation AutomationControl
	retention  RetentionRunner
	limiter    ratelimit.Limiter
	accounts   Disconnector
	archiver   Archiver

	cronSecret     string
	streamInterval time.Duration
	streamBudget   time.Duration
}

func NewHandler(
	status StatusSource,
	syncs SyncRunner,
	automationCtl AutomationControl,
	retentionRunner RetentionRunner,
	limiter ratelimit.Limiter,
	accounts Disconnector,
	archiver Archiver,
	cronSecret string,
) *Handler {
	return &Handler{
		status:         status,
		syncs:          syncs,
		automation:     automationCtl,
		retention:      retentionRunner,
		limiter:        limiter,
		accounts:       accounts,
		archiver:       archiver,
		cronSecret:     cronSecret,
		streamInterval: defaultStreamInterval,
		streamBudget:   defaultStreamBudget,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("Failed to encode response: %v", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// currentUserID reads the user id injected by the fronting identity
// proxy. Auth itself is out of scope here.
func currentUserID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// Health responds to liveness probes
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SyncStatus serves the poll variant of the status reporter.
// GET /api/v1/accounts/{accountID}/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	snapshot, err := h.status.Status(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load sync status")
		log.Printf("Status snapshot failed for account %s: %v", accountID, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// SyncStream serves the push variant: an SSE session that re-emits the
// snapshot on a fixed interval for a bounded wall-clock budget, then
// sends a terminal done event. Client disconnect cancels the request
// context, which stops the polling loop promptly.
// GET /api/v1/accounts/{accountID}/sync/stream
func (h *Handler) SyncStream(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(r.Context(), h.streamBudget)
	defer cancel()

	emit := func() {
		snapshot, err := h.status.Status(ctx, accountID)
		if err != nil {
			log.Printf("Stream snapshot failed for account %s: %v", accountID, err)
			return
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
		flusher.Flush()
	}

	// Initial snapshot on open
	emit()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// Session budget elapsed, not a client disconnect
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
			}
			return
		case <-ticker.C:
			emit()
		}
	}
}

type triggerSyncRequest struct {
	Phases []models.SyncPhase `json:"phases,omitempty"`
}

// TriggerSync starts a sync run in the background.
// POST /api/v1/accounts/{accountID}/sync
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req triggerSyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	// The sync runs detached and outlives the trigger call; the slot is
	// already held once StartSync returns nil.
	if err := h.syncs.StartSync(accountID, req.Phases...); err != nil {
		switch {
		case errors.Is(err, sync.ErrSyncInProgress):
			respondError(w, http.StatusConflict, "sync already in progress for this account")
		case errors.Is(err, sync.ErrUnknownPhase):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "failed to start sync")
			log.Printf("Failed to start sync for account %s: %v", accountID, err)
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"started":   true,
		"accountId": accountID,
	})
}

type automationRequest struct {
	Action    automation.Action `json:"action"`
	AccountID string            `json:"accountId,omitempty"`
}

// ApplyAutomation drives the auto-reply state machine.
// POST /api/v1/automation
func (h *Handler) ApplyAutomation(w http.ResponseWriter, r *http.Request) {
	var req automationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.automation.Apply(r.Context(), req.Action, req.AccountID)
	if err != nil {
		if errors.Is(err, automation.ErrUnknownAction) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to apply automation action")
		log.Printf("Automation action %q failed: %v", req.Action, err)
		return
	}

	// Partial success (settings saved, queue clear failed) is a distinct
	// warning, not a success toast
	if result.SettingsUpdated && !result.QueueCleared {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"result":  result,
			"warning": "settings updated but queued replies could not be cleared; retry the reset",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

type bulkReplyRequest struct {
	AccountID string   `json:"accountId"`
	ReviewIDs []string `json:"reviewIds"`
}

// BulkReply queues reviews for automated replies, gated by the per-user
// rate limiter. A rejected request is a hard stop with 429 semantics.
// POST /api/v1/reviews/bulk-reply
func (h *Handler) BulkReply(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	limit, err := h.limiter.Check(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "rate limiter unavailable")
		log.Printf("Rate limit check failed for user %s: %v", userID, err)
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(limit.ResetAt.Unix(), 10))

	if !limit.Allowed {
		respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":   "rate limit exceeded",
			"resetAt": limit.ResetAt,
		})
		return
	}

	var req bulkReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ReviewIDs) == 0 {
		respondError(w, http.StatusBadRequest, "reviewIds is required")
		return
	}

	queued, err := h.automation.EnqueueReplies(r.Context(), req.AccountID, req.ReviewIDs)
	if err != nil {
		if errors.Is(err, automation.ErrAutomationDisabled) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to queue replies")
		log.Printf("Bulk reply enqueue failed for user %s: %v", userID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"queued": queued})
}

// DraftReply generates a reply draft for one review.
// POST /api/v1/reviews/{reviewID}/draft-reply
func (h *Handler) DraftReply(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "reviewID")

	draft, err := h.automation.DraftReply(r.Context(), reviewID)
	if err != nil {
		switch {
		case errors.Is(err, automation.ErrAutomationDisabled),
			errors.Is(err, automation.ErrBelowRatingCutoff):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			respondError(w, http.StatusBadGateway, "failed to draft reply")
			log.Printf("Draft reply failed for review %s: %v", reviewID, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"draft": draft})
}

// Disconnect soft-deactivates an account and archives its mirrored data
// so the retention sweep can reclaim it after the retention window.
// POST /api/v1/accounts/{accountID}/disconnect
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := h.accounts.Disconnect(r.Context(), accountID); err != nil {
		respondError(w, http.StatusNotFound, "account not found or already disconnected")
		return
	}

	if err := h.archiver.ArchiveAccountData(r.Context(), accountID, time.Now()); err != nil {
		// Account is disconnected either way; archiving is retried by
		// re-invoking disconnect
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"disconnected": true,
			"warning":      "some data could not be archived; invoke disconnect again",
		})
		log.Printf("Archive on disconnect failed for account %s: %v", accountID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"disconnected": true})
}

// RetentionCron is the scheduler entry point for the retention sweep,
// authorized by a shared secret.
// POST /api/v1/cron/retention
func (h *Handler) RetentionCron(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" || r.Header.Get("X-Cron-Secret") != h.cronSecret {
		respondError(w, http.StatusUnauthorized, "invalid cron secret")
		return
	}

	report, err := h.retention.Run(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "retention sweep failed")
		log.Printf("Retention sweep failed: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
