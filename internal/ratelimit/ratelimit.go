// Package ratelimit provides per-resource sliding-window action throttling.
//
// Each resource (device or user) gets its own window of recent action
// timestamps. Checks prune expired entries lazily, and locking is
// per-resource so concurrent command pipelines for unrelated devices never
// serialise on each other.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults applied when Config fields are zero.
const (
	defaultWindow     = time.Minute
	defaultMaxActions = 10
)

// Config holds rate limiter policy settings.
type Config struct {
	// Window is the sliding window length.
	Window time.Duration

	// MaxActions is the maximum number of actions per resource within
	// the window.
	MaxActions int
}

// window holds one resource's recent action timestamps.
// The mutex covers only this resource.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter throttles actions per resource identifier.
//
// All methods are safe for concurrent use. The outer map lock is held only
// long enough to locate or create a resource's window; the per-window lock
// covers the timestamp operations.
type Limiter struct {
	cfg  Config
	mu   sync.RWMutex // guards the keys map only
	keys map[string]*window
	now  func() time.Time // injectable clock for tests
}

// New creates a sliding-window rate limiter.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.MaxActions <= 0 {
		cfg.MaxActions = defaultMaxActions
	}
	return &Limiter{
		cfg:  cfg,
		keys: make(map[string]*window),
		now:  time.Now,
	}
}

// CanPerformAction reports whether the resource is under its limit.
// Expired entries are pruned lazily on each check. The check itself does
// not count as an action; denials are never recorded.
func (l *Limiter) CanPerformAction(resourceID string) bool {
	w := l.window(resourceID)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(l.now().Add(-l.cfg.Window))
	return len(w.stamps) < l.cfg.MaxActions
}

// RecordAction records one action for the resource at the current time.
func (l *Limiter) RecordAction(resourceID string) {
	w := l.window(resourceID)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(l.now().Add(-l.cfg.Window))
	w.stamps = append(w.stamps, l.now())
}

// Reset clears all recorded actions for all resources.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = make(map[string]*window)
}

// window returns the resource's window, creating it if needed.
func (l *Limiter) window(resourceID string) *window {
	l.mu.RLock()
	w, ok := l.keys[resourceID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.keys[resourceID]; ok {
		return w
	}
	w = &window{}
	l.keys[resourceID] = w
	return w
}

// prune drops timestamps at or before the cutoff.
// Caller must hold the window's mutex.
func (w *window) prune(cutoff time.Time) {
	kept := w.stamps[:0]
	for _, t := range w.stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.stamps = kept
}
