// Package ratelimit implements the per-user sliding-window limiter used by
// the transport-facing orchestrator. The autonomous path is not limited
// here; quiet hours govern it instead.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"aide/internal/config"
)

// Limiter tracks per-user event timestamps over a sliding window.
type Limiter struct {
	mu     sync.Mutex
	events map[int64][]time.Time

	window time.Duration
	max    int
	now    func() time.Time
}

// New creates a limiter from config.
func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		events: make(map[int64][]time.Time),
		window: time.Duration(cfg.WindowSeconds) * time.Second,
		max:    cfg.MaxRequests,
		now:    time.Now,
	}
}

// Check records an event for the user if allowed. On denial it returns a
// human-readable reason including a suggested retry-after.
func (l *Limiter) Check(userID int64) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.events[userID][:0]
	for _, ts := range l.events[userID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.events[userID] = kept

	if len(kept) >= l.max {
		retryAfter := kept[0].Add(l.window).Sub(now).Round(time.Second)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, fmt.Sprintf(
			"You're sending messages a bit fast. Please wait about %s and try again.", retryAfter)
	}

	l.events[userID] = append(kept, now)
	return true, ""
}

// Remaining reports how many events the user has left in the current
// window.
func (l *Limiter) Remaining(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, ts := range l.events[userID] {
		if ts.After(cutoff) {
			n++
		}
	}
	if n >= l.max {
		return 0
	}
	return l.max - n
}
