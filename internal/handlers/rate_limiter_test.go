package handlers

import (
	"testing"
	"time"
)

func TestPerMinuteLimiterRefills(t *testing.T) {
	now := testNow
	limiter := newPerMinuteLimiter(2, func() time.Time { return now })

	if !limiter.Allow("s1") || !limiter.Allow("s1") {
		t.Fatal("expected burst of two to pass")
	}
	if limiter.Allow("s1") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("s2") {
		t.Fatal("expected independent budget per key")
	}

	now = now.Add(30 * time.Second)
	if !limiter.Allow("s1") {
		t.Fatal("expected one token refilled after half a minute")
	}
	if limiter.Allow("s1") {
		t.Fatal("expected bucket drained again")
	}
}

func TestPerMinuteLimiterDisabled(t *testing.T) {
	if newPerMinuteLimiter(0, nil) != nil {
		t.Fatal("expected nil limiter when disabled")
	}
}

func TestPerMinuteLimiterPrunesIdleKeys(t *testing.T) {
	now := testNow
	limiter := newPerMinuteLimiter(1, func() time.Time { return now }).(*keyedRateLimiter)

	limiter.Allow("idle")
	now = now.Add(2 * limiterIdleTTL)
	limiter.Allow("active")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.store["idle"]; ok {
		t.Fatal("expected idle key pruned")
	}
	if _, ok := limiter.store["active"]; !ok {
		t.Fatal("expected active key retained")
	}
}
