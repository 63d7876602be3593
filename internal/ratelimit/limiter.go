// Package ratelimit provides admission control for bulk operations:
// a fixed-window counter per user id with interchangeable backends.
// Callers must treat a disallowed result as a hard stop, not a queue.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter admits or rejects one request for the given key (user id).
// Every call counts against the window, allowed or not.
type Limiter interface {
	Check(ctx context.Context, key string) (Result, error)
}
