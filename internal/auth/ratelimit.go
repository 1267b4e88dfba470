// ratelimit.go -- Per-identifier login failure counter.
//
// Process-local map: counters are lost on restart and are not shared between
// instances. Lockout expiry is checked lazily on the next Check call.
package auth

import (
	"math"
	"sync"
	"time"

	"github.com/MGallo-Code/dirshare/internal/clock"
)

type failureCounter struct {
	count       int
	lastAttempt time.Time
}

// LoginLimiter locks an identifier out for Lockout after MaxAttempts failures.
// Every failure moves lastAttempt forward, so the lockout window is measured
// from the most recent failure.
type LoginLimiter struct {
	MaxAttempts int
	Lockout     time.Duration

	clock    clock.Clock
	mu       sync.Mutex
	counters map[string]*failureCounter
}

// NewLoginLimiter returns a limiter using c for time. Nil c means the real clock.
func NewLoginLimiter(maxAttempts int, lockout time.Duration, c clock.Clock) *LoginLimiter {
	if c == nil {
		c = clock.Real{}
	}
	return &LoginLimiter{
		MaxAttempts: maxAttempts,
		Lockout:     lockout,
		clock:       c,
		counters:    make(map[string]*failureCounter),
	}
}

// Check returns nil when id may attempt a login, or a *RateLimitedError while locked.
// A counter whose window has elapsed is dropped here.
func (l *LoginLimiter) Check(id string) error {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[id]
	if !ok {
		return nil
	}
	elapsed := now.Sub(c.lastAttempt)
	if elapsed >= l.Lockout {
		delete(l.counters, id)
		return nil
	}
	if c.count < l.MaxAttempts {
		return nil
	}

	remaining := l.Lockout - elapsed
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return &RateLimitedError{RemainingMinutes: minutes}
}

// RecordFailure increments the counter for id and stamps lastAttempt = now.
func (l *LoginLimiter) RecordFailure(id string) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[id]
	if !ok || now.Sub(c.lastAttempt) >= l.Lockout {
		c = &failureCounter{}
		l.counters[id] = c
	}
	c.count++
	c.lastAttempt = now
}

// Reset forgets id entirely. Called after a successful login.
func (l *LoginLimiter) Reset(id string) {
	l.mu.Lock()
	delete(l.counters, id)
	l.mu.Unlock()
}

// Failures returns the current count for id (0 if absent or lapsed).
func (l *LoginLimiter) Failures(id string) int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.counters[id]
	if !ok || now.Sub(c.lastAttempt) >= l.Lockout {
		return 0
	}
	return c.count
}

// Prune drops every lapsed counter and returns how many were removed.
func (l *LoginLimiter) Prune() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, c := range l.counters {
		if now.Sub(c.lastAttempt) >= l.Lockout {
			delete(l.counters, id)
			n++
		}
	}
	return n
}
