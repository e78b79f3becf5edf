package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultCeiling = 10
	DefaultWindow  = 60 * time.Second
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a sliding-window request throttle keyed by credential
// identity. The window map is process-local shared state; all access goes
// through a single mutex.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	ceiling int
	window  time.Duration
	now     func() time.Time
}

// NewLimiter creates a limiter allowing ceiling requests per windowSize
// for each key identity. Non-positive values fall back to the defaults.
func NewLimiter(ceiling int, windowSize time.Duration) *Limiter {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &Limiter{
		windows: make(map[string]*window),
		ceiling: ceiling,
		window:  windowSize,
		now:     time.Now,
	}
}

// Check records one request for keyID and reports whether it is allowed.
// A fresh window starts at count 1. Once the ceiling is reached further
// requests are denied without incrementing the count.
func (l *Limiter) Check(keyID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[keyID]
	if !exists || now.After(w.resetAt) {
		l.windows[keyID] = &window{count: 1, resetAt: now.Add(l.window)}
		return true
	}

	if w.count >= l.ceiling {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many requests keyID may still make in its current
// window, clamped at zero. A key with no active window has the full
// ceiling available.
func (l *Limiter) Remaining(keyID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[keyID]
	if !exists || l.now().After(w.resetAt) {
		return l.ceiling
	}
	if w.count >= l.ceiling {
		return 0
	}
	return l.ceiling - w.count
}

// ResetAt returns when the current window for keyID ends. The boolean is
// false if the key has no active window.
func (l *Limiter) ResetAt(keyID string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[keyID]
	if !exists || l.now().After(w.resetAt) {
		return time.Time{}, false
	}
	return w.resetAt, true
}

// Sweep drops windows whose reset time has passed. This bounds memory
// independent of traffic shape and has no effect on Check correctness.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for keyID, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, keyID)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Swept expired rate-limit windows", "removed", removed)
	}
}

// StartSweep runs Sweep on the given interval until ctx is cancelled.
func (l *Limiter) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
