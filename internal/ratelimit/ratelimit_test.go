package ratelimit

import (
	"strings"
	"testing"
	"time"

	"aide/internal/config"
)

func newTestLimiter(max, windowSeconds int) (*Limiter, *time.Time) {
	l := New(config.RateLimitConfig{WindowSeconds: windowSeconds, MaxRequests: max})
	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(3, 60)

	for i := 0; i < 3; i++ {
		ok, reason := l.Check(1)
		if !ok {
			t.Fatalf("request %d denied: %s", i, reason)
		}
	}
	ok, reason := l.Check(1)
	if ok {
		t.Fatal("fourth request should be denied")
	}
	if !strings.Contains(reason, "wait") {
		t.Errorf("denial reason not human-readable: %q", reason)
	}
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, 60)

	l.Check(1)
	l.Check(1)
	if ok, _ := l.Check(1); ok {
		t.Fatal("limit not enforced")
	}

	*clock = clock.Add(61 * time.Second)
	if ok, _ := l.Check(1); !ok {
		t.Error("events outside the window should not count")
	}
}

func TestUsersIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 60)

	if ok, _ := l.Check(1); !ok {
		t.Fatal("first user denied")
	}
	if ok, _ := l.Check(2); !ok {
		t.Error("second user should have an independent window")
	}
}

func TestRemaining(t *testing.T) {
	l, _ := newTestLimiter(3, 60)

	if got := l.Remaining(1); got != 3 {
		t.Errorf("remaining = %d, want 3", got)
	}
	l.Check(1)
	l.Check(1)
	if got := l.Remaining(1); got != 1 {
		t.Errorf("remaining = %d, want 1", got)
	}
}
