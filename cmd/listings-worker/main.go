package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vantora/listings-worker/internal/automation"
	"github.com/vantora/listings-worker/internal/config"
	"github.com/vantora/listings-worker/internal/database"
	"github.com/vantora/listings-worker/internal/llm"
	"github.com/vantora/listings-worker/internal/provider"
	"github.com/vantora/listings-worker/internal/ratelimit"
	"github.com/vantora/listings-worker/internal/repository"
	"github.com/vantora/listings-worker/internal/retention"
	"github.com/vantora/listings-worker/internal/server"
	"github.com/vantora/listings-worker/internal/sync"
	"github.com/vantora/listings-worker/internal/video"
	"github.com/vantora/listings-worker/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	contentRepo := repository.NewContentRepository(db)
	metricRepo := repository.NewMetricRepository(db)
	automationRepo := repository.NewAutomationRepository(db)

	// Initialize external clients
	providerClient := provider.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret)
	videoClient := video.NewClient()
	llmClient := llm.NewClient(cfg.OpenRouterAPIKey)

	// Initialize the sync engine
	tokenManager := sync.NewTokenManager(accountRepo, providerClient)
	phaseRunner := sync.NewPhaseRunner(
		accountRepo, syncLogRepo, tokenManager, providerClient, videoClient,
		locationRepo, reviewRepo, contentRepo, metricRepo,
	)
	orchestrator := sync.NewOrchestrator(phaseRunner, accountRepo)
	statusReporter := sync.NewStatusReporter(syncLogRepo)

	// Automation and retention
	controller := automation.NewController(automationRepo, reviewRepo, llmClient)
	sweeper := retention.NewSweeper(accountRepo, reviewRepo, contentRepo, locationRepo)
	archiver := retention.NewArchiver(locationRepo, reviewRepo, contentRepo)

	// Rate limiter: durable counter by default, in-process fallback for
	// single-process deployments
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var limiter ratelimit.Limiter
	window := time.Duration(cfg.RateLimitWindow) * time.Minute
	if cfg.RateLimitBackend == "memory" {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitMax, window)
		memLimiter.StartSweep(ctx, window)
		limiter = memLimiter
	} else {
		limiter = ratelimit.NewPostgresLimiter(db, cfg.RateLimitMax, window)
	}

	// HTTP server
	handler := server.NewHandler(
		statusReporter, orchestrator, controller, sweeper, limiter,
		accountRepo, archiver, cfg.CronSecret,
	)
	router := server.NewRouter(handler, server.RouterConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		IPRateLimit:        cfg.IPRateLimit,
		IPRateLimitWindow:  time.Minute,
	})
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	// Initialize watcher
	w := watcher.New(cfg, accountRepo, orchestrator, sweeper)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}

		select {
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Watcher error: %v", err)
			}
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
