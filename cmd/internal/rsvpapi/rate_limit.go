package rsvpapi

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// slidingWindow is a single-key sliding-window limiter.
type slidingWindow struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		events: make([]time.Time, 0, limit+1),
		limit:  limit,
		window: window,
	}
}

// allow reports whether an event at now is permitted and, if not, how long
// until the oldest event in the window expires.
func (r *slidingWindow) allow(now time.Time) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	dst := r.events[:0]
	for _, t := range r.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	r.events = dst

	if len(r.events) >= r.limit {
		return false, r.events[0].Add(r.window).Sub(now)
	}
	r.events = append(r.events, now)
	return true, 0
}

// KeyedRateLimiter applies an independent sliding window per key (client IP).
// Idle keys are evicted after one window.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	windows *cache.Cache
	limit   int
	window  time.Duration
}

// NewKeyedRateLimiter constructs a limiter allowing limit events per window per key.
func NewKeyedRateLimiter(limit int, window time.Duration) *KeyedRateLimiter {
	if limit <= 0 {
		limit = defaultAccessCodeRate
	}
	if window <= 0 {
		window = defaultAccessCodeWindow
	}
	return &KeyedRateLimiter{
		windows: cache.New(window, 2*window),
		limit:   limit,
		window:  window,
	}
}

// Allow records an attempt for key at now.
func (l *KeyedRateLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	var sw *slidingWindow
	if v, ok := l.windows.Get(key); ok {
		sw = v.(*slidingWindow)
	} else {
		sw = newSlidingWindow(l.limit, l.window)
	}
	// Refresh the idle TTL on every attempt.
	l.windows.Set(key, sw, cache.DefaultExpiration)
	l.mu.Unlock()

	return sw.allow(now)
}
