package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string

	PollInterval        int // seconds
	SyncIntervalMinutes int // scheduled sync cadence per account
	SyncBatchSize       int // accounts picked up per poll
	ShutdownTimeout     int // seconds

	GoogleClientID     string
	GoogleClientSecret string
	OpenRouterAPIKey   string

	CronSecret        string
	RetentionCronSpec string

	RateLimitBackend string // "postgres" or "memory"
	RateLimitMax     int    // bulk operations per user per window
	RateLimitWindow  int    // minutes

	IPRateLimit        int // global per-IP requests per minute
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	googleClientID := os.Getenv("GOOGLE_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if googleClientID == "" || googleClientSecret == "" {
		fmt.Println("Warning: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, token refresh will not work")
	}

	openRouterAPIKey := os.Getenv("OPENROUTER_API_KEY")
	if openRouterAPIKey == "" {
		fmt.Println("Warning: OPENROUTER_API_KEY not set, reply drafting will not work")
	}

	cronSecret := os.Getenv("CRON_SECRET")
	if cronSecret == "" {
		fmt.Println("Warning: CRON_SECRET not set, the retention cron endpoint will reject all calls")
	}

	return &Config{
		DatabaseURL: dbURL,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		PollInterval:        getenvInt("POLL_INTERVAL", 60),
		SyncIntervalMinutes: getenvInt("SYNC_INTERVAL_MINUTES", 24*60),
		SyncBatchSize:       getenvInt("SYNC_BATCH_SIZE", 5),
		ShutdownTimeout:     30,

		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		OpenRouterAPIKey:   openRouterAPIKey,

		CronSecret:        cronSecret,
		RetentionCronSpec: getenv("RETENTION_CRON", "@daily"),

		RateLimitBackend: getenv("RATE_LIMIT_BACKEND", "postgres"),
		RateLimitMax:     getenvInt("RATE_LIMIT_MAX", 30),
		RateLimitWindow:  getenvInt("RATE_LIMIT_WINDOW_MINUTES", 15),

		IPRateLimit:        getenvInt("IP_RATE_LIMIT", 100),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}, nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Printf("Warning: invalid %s=%q, using default %d\n", key, value, fallback)
		return fallback
	}
	return n
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
