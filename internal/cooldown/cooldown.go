package cooldown

import (
	"sync"
	"time"
)

// Registry tracks the most recent exit time per ticker and blocks
// re-entry until a full cooldown window has elapsed. An attempt at
// exactly the window boundary is still blocked; only strictly more than
// the window clears a ticker.
type Registry struct {
	mu        sync.RWMutex
	window    time.Duration
	lastExits map[string]time.Time
}

// NewRegistry creates a registry with the given cooldown window.
func NewRegistry(window time.Duration) *Registry {
	return &Registry{
		window:    window,
		lastExits: make(map[string]time.Time),
	}
}

// RecordExit marks ticker as having exited at t. Later exits win.
func (r *Registry) RecordExit(ticker string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.lastExits[ticker]; ok && existing.After(t) {
		return
	}
	r.lastExits[ticker] = t
}

// Allowed reports whether ticker may be re-entered at now.
func (r *Registry) Allowed(ticker string, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exit, ok := r.lastExits[ticker]
	if !ok {
		return true
	}
	return now.Sub(exit) > r.window
}

// Remaining returns how long until ticker clears cooldown, zero if clear.
func (r *Registry) Remaining(ticker string, now time.Time) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exit, ok := r.lastExits[ticker]
	if !ok {
		return 0
	}
	left := r.window - now.Sub(exit)
	if left < 0 {
		return 0
	}
	return left
}

// Restore merges a previously snapshotted exit map back into the
// registry. Later exits win, same as RecordExit.
func (r *Registry) Restore(exits map[string]time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ticker, t := range exits {
		if existing, ok := r.lastExits[ticker]; ok && existing.After(t) {
			continue
		}
		r.lastExits[ticker] = t
	}
}

// Reset clears all cooldowns, used at session start.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastExits = make(map[string]time.Time)
}

// Snapshot returns the exit times currently tracked.
func (r *Registry) Snapshot() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]time.Time, len(r.lastExits))
	for k, v := range r.lastExits {
		out[k] = v
	}
	return out
}
