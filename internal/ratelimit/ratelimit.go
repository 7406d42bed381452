package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	attempts []time.Time
}

// Limiter is an in-memory sliding window rate limiter keyed by client
// identity (here, IP addresses of responders and subscribers).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int
	window  time.Duration
}

// New creates a Limiter that allows max attempts per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		max:     max,
		window:  window,
	}
}

// Allow checks whether an attempt for the given key is allowed and, if so,
// records it. Denied attempts are not recorded, which keeps each bucket
// bounded at max entries.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{attempts: []time.Time{now}}
		return true
	}

	// Drop attempts that have slid out of the window.
	live := b.attempts[:0]
	for _, t := range b.attempts {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	b.attempts = live

	if len(b.attempts) >= l.max {
		return false
	}

	b.attempts = append(b.attempts, now)
	return true
}

// RetryAfter reports how long the key's oldest recorded attempt needs to age
// out before another attempt can succeed. Zero when the key is not limited.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || len(b.attempts) < l.max {
		return 0
	}
	wait := time.Until(b.attempts[0].Add(l.window))
	if wait < 0 {
		return 0
	}
	return wait
}

// Reset clears all recorded attempts for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Cleanup removes buckets whose attempts have all expired.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	for key, b := range l.buckets {
		live := false
		for _, t := range b.attempts {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup periodically until done is closed.
func (l *Limiter) StartCleanup(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-done:
				return
			}
		}
	}()
}
