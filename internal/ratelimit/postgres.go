package ratelimit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PostgresLimiter is the durable backend: one counter row per key in the
// rate_limit_window table, incremented with an atomic upsert so multiple
// worker processes share the same window.
type PostgresLimiter struct {
	db     *gorm.DB
	limit  int
	window time.Duration
}

func NewPostgresLimiter(db *gorm.DB, limit int, window time.Duration) *PostgresLimiter {
	return &PostgresLimiter{db: db, limit: limit, window: window}
}

// Check counts one request against the key's current window. The upsert
// resets the counter in the same statement once the window has elapsed.
func (l *PostgresLimiter) Check(ctx context.Context, key string) (Result, error) {
	query := `
		INSERT INTO rate_limit_window (key, count, reset_at, updated_at)
		VALUES (?, 1, ?, NOW())
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rate_limit_window.reset_at <= NOW()
				THEN 1 ELSE rate_limit_window.count + 1 END,
			reset_at = CASE WHEN rate_limit_window.reset_at <= NOW()
				THEN EXCLUDED.reset_at ELSE rate_limit_window.reset_at END,
			updated_at = NOW()
		RETURNING count, reset_at
	`

	var count int
	var resetAt time.Time
	row := l.db.WithContext(ctx).Raw(query, key, time.Now().Add(l.window)).Row()
	if err := row.Scan(&count, &resetAt); err != nil {
		return Result{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
