package ratelimit

import (
	"context"
	"sync"
	"time"
)

// maxIdleWindows bounds how many per-IP windows may accumulate before
// a sweep drops the stale ones.
const maxIdleWindows = 4096

// ipWindow tracks admissions for one source IP during a one-second slot.
type ipWindow struct {
	slot int64 // Unix second the count belongs to.
	used int   // Requests admitted during the slot.
}

// MemoryLimiter throttles per-IP request bursts with one-second windows
// kept in process memory. It is the default backend and the fallback
// when Redis is disabled or unreachable.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*ipWindow
}

// NewMemoryLimiter constructs an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*ipWindow)}
}

// Allow admits the request when the caller's current window still has
// room. A non-positive limit or empty key disables throttling.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if key == "" || limit <= 0 {
		return Result{Allowed: true}, nil
	}
	slot := now.Unix()
	reset := time.Unix(slot+1, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.windows) > maxIdleWindows {
		l.sweep(slot)
	}

	win := l.windows[key]
	if win == nil || win.slot != slot {
		win = &ipWindow{slot: slot}
		l.windows[key] = win
	}
	if win.used >= limit {
		return Result{Allowed: false, Reset: reset}, nil
	}
	win.used++
	return Result{Allowed: true, Remaining: limit - win.used, Reset: reset}, nil
}

// sweep removes windows from earlier seconds. Callers hold l.mu.
func (l *MemoryLimiter) sweep(slot int64) {
	for key, win := range l.windows {
		if win.slot != slot {
			delete(l.windows, key)
		}
	}
}
