package utils

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RateLimiter is a simple in-process sliding-window limiter, used as the
// fallback when Redis isn't reachable at startup (see internal/api/router.go).
// It is intentionally not distributed — under multiple server processes it
// only bounds load on the process that holds it.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing `limit` events per `window` per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
	}
}

// Allow reports whether the caller identified by key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	hits := rl.entries[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.entries[key] = kept
		return false
	}

	rl.entries[key] = append(kept, now)
	return true
}

// GenerateUUID returns a new random request identifier.
func GenerateUUID() string {
	return uuid.NewString()
}
