package llm

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the maximum number of model calls allowed per user
	// per minute when no explicit limit is configured.
	DefaultRateLimit = 30

	// defaultRateLimitWindow is the sliding window duration.
	defaultRateLimitWindow = time.Minute
)

// RateLimiter enforces a per-user sliding-window limit on collaborator
// calls so a single chatty user cannot burn the whole token budget.
//
// Internally it holds the call timestamps for each user within the current
// window and prunes stale entries on every Allow call, keeping memory
// bounded to O(limit) entries per active user.
//
// RateLimiter is safe for concurrent use from multiple goroutines.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string][]time.Time // userID → call timestamps in window
}

// NewRateLimiter returns a RateLimiter that allows at most limit calls per
// user within window.
//
// If limit ≤ 0 it defaults to DefaultRateLimit.
// If window ≤ 0 it defaults to one minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		counters: make(map[string][]time.Time),
	}
}

// Allow reports whether the user may make another collaborator call and
// records the current timestamp when they may. Returns false when the user
// has exhausted their quota for the current window.
func (r *RateLimiter) Allow(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	// Prune timestamps that have fallen outside the window.
	existing := r.counters[userID]
	valid := existing[:0] // reuse backing array
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= r.limit {
		r.counters[userID] = valid
		return false
	}

	r.counters[userID] = append(valid, now)
	return true
}

// Remaining returns the number of calls the user can still make within the
// current window. A return value of 0 means the next Allow call will return
// false.
func (r *RateLimiter) Remaining(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	count := 0
	for _, t := range r.counters[userID] {
		if t.After(cutoff) {
			count++
		}
	}
	rem := r.limit - count
	if rem < 0 {
		return 0
	}
	return rem
}
