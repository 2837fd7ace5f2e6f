package tool

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by tool ID. Each key keeps
// the timestamps of its allowed calls inside the window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  map[int][]time.Time
	now    func() time.Time // for testing
}

// NewRateLimiter allows limit calls per window for each key.
// A limit <= 0 disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		calls:  make(map[int][]time.Time),
		now:    time.Now,
	}
}

// Allow records a call for key and reports whether it fits in the window.
func (r *RateLimiter) Allow(key int) bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	kept := r.calls[key][:0]
	for _, t := range r.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		r.calls[key] = kept
		return false
	}
	r.calls[key] = append(kept, now)
	return true
}
