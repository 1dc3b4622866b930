// Package ratelimit provides per-client sliding-window admission control
// for inbound gateway messages.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	windowStart time.Time
	count       int
}

// Limiter admits up to maxMessages per window for each client key.
// Buckets for distinct keys are independent.
type Limiter struct {
	window      time.Duration
	maxMessages int

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New constructs a limiter with the given window length and per-window cap.
func New(window time.Duration, maxMessages int) *Limiter {
	if window <= 0 {
		window = 10 * time.Second
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}
	return &Limiter{
		window:      window,
		maxMessages: maxMessages,
		buckets:     make(map[string]*bucket),
	}
}

// Allow reports whether a message from clientKey observed at now is
// admitted. The first call for a key opens a window. A window expires only
// when now is strictly past windowStart plus the window length; a
// boundary-equal timestamp stays in the current window. The call that
// observes an expired window is itself admitted and restarts the count.
func (l *Limiter) Allow(clientKey string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientKey]
	if !ok || now.Sub(b.windowStart) > l.window {
		l.buckets[clientKey] = &bucket{windowStart: now, count: 1}
		return true
	}
	if b.count >= l.maxMessages {
		return false
	}
	b.count++
	return true
}

// Clear removes all state for clientKey. Called on disconnect so limiter
// memory stays bounded by the number of live connections.
func (l *Limiter) Clear(clientKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, clientKey)
}

// Len reports the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
