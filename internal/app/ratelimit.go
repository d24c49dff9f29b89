package app

import (
	"sync"
	"time"

	"geochat/internal/domain"
)

// RateLimiter bounds chat throughput per user over a sliding window.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

// Allow records one send attempt and reports whether it fits inside the
// window. Expired attempts are pruned in place on every call.
func (rl *RateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.interval)

	kept := rl.history[uid][:0]
	for _, t := range rl.history[uid] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.history[uid] = kept

	if len(kept) >= rl.limit {
		return false
	}
	rl.history[uid] = append(kept, now)
	return true
}
