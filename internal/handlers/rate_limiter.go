package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// fixedWindowLimiter counts requests per key inside a fixed window. It guards
// signed-upload issuance, where the caller population is small (staff UIDs),
// so a map with opportunistic pruning is enough.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]window
}

type window struct {
	used    int
	resetAt time.Time
}

// newSimpleRateLimiter returns nil (no limiting) when limit or window is not
// positive.
func newSimpleRateLimiter(limit int, windowSize time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || windowSize <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  windowSize,
		clock:   clock,
		windows: make(map[string]window),
	}
}

func (l *fixedWindowLimiter) Allow(key string) bool {
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

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = window{used: 1, resetAt: now.Add(l.window)}
		l.dropStaleLocked(now)
		return true
	}
	if w.used >= l.limit {
		return false
	}
	w.used++
	l.windows[key] = w
	return true
}

// dropStaleLocked removes windows that have already reset so the map does not
// grow with one-off callers.
func (l *fixedWindowLimiter) dropStaleLocked(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
