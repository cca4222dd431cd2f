package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 30 * time.Minute

type rateLimiter interface {
	Allow(key string) bool
}

// keyedRateLimiter keeps one token bucket per key, refilled evenly across a minute.
type keyedRateLimiter struct {
	limit rate.Limit
	burst int
	clock func() time.Time

	mu    sync.Mutex
	store map[string]*limiterEntry
	swept time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newPerMinuteLimiter(perMinute int, clock func() time.Time) rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &keyedRateLimiter{
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: perMinute,
		clock: clock,
		store: make(map[string]*limiterEntry),
	}
}

func (l *keyedRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.store[key] = entry
	}
	entry.seen = now
	if now.Sub(l.swept) > limiterIdleTTL {
		l.pruneIdleLocked(now)
	}
	return entry.limiter.AllowN(now, 1)
}

func (l *keyedRateLimiter) pruneIdleLocked(now time.Time) {
	l.swept = now
	for key, entry := range l.store {
		if now.Sub(entry.seen) > limiterIdleTTL {
			delete(l.store, key)
		}
	}
}
