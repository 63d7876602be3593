// Package server exposes the worker's HTTP surface to the dashboard:
// sync status (poll and stream), sync trigger, automation control, the
// rate-limited bulk operations, and the cron entry point.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RouterConfig holds the HTTP-surface knobs.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// Global per-IP request limit, separate from the per-user bulk
	// operation limiter.
	IPRateLimit       int
	IPRateLimitWindow time.Duration
}

// NewRouter wires the handler into a chi router with the shared
// middleware stack.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-User-ID", "X-Cron-Secret"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))
	if cfg.IPRateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.IPRateLimit, cfg.IPRateLimitWindow))
	}

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/sync/status", h.SyncStatus)
			r.Get("/sync/stream", h.SyncStream)
			r.Post("/sync", h.TriggerSync)
			r.Post("/disconnect", h.Disconnect)
		})

		r.Post("/automation", h.ApplyAutomation)

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/bulk-reply", h.BulkReply)
			r.Post("/{reviewID}/draft-reply", h.DraftReply)
		})

		r.Post("/cron/retention", h.RetentionCron)
	})

	return r
}
