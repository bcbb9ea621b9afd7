// Package ratelimit implements sliding-window admission control for
// clipboard and paste operations.
//
// Each named action carries a (max requests, window) budget. Admission
// checks and recording are separate calls so callers can decide before
// acting. Window purging is lazy: stale timestamps are dropped inside
// Allowed and Record rather than by a background timer.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Well-known action names.
const (
	ActionPaste         = "paste"
	ActionClipboardRead = "clipboard-read"
	ActionLargePaste    = "large-paste"
)

// DefaultLargeThreshold is the payload size in bytes above which a paste
// is counted against the stricter large-paste budget.
const DefaultLargeThreshold = 10000

// Limit is a per-action budget.
type Limit struct {
	Max    int
	Window time.Duration
}

// Limiter tracks request timestamps per action over a trailing window.
// Unknown actions are always allowed: throttling here is defense in
// depth, not a correctness boundary.
type Limiter struct {
	mu             sync.Mutex
	limits         map[string]Limit
	history        map[string][]time.Time
	largeThreshold int
	now            func() time.Time
}

// New creates a limiter with the default paste, clipboard-read and
// large-paste budgets.
func New() *Limiter {
	return NewWithLimits(map[string]Limit{
		ActionPaste:         {Max: 30, Window: 60 * time.Second},
		ActionClipboardRead: {Max: 100, Window: 60 * time.Second},
		ActionLargePaste:    {Max: 5, Window: 300 * time.Second},
	})
}

// NewWithLimits creates a limiter with custom budgets.
func NewWithLimits(limits map[string]Limit) *Limiter {
	l := &Limiter{
		limits:         make(map[string]Limit, len(limits)),
		history:        make(map[string][]time.Time),
		largeThreshold: DefaultLargeThreshold,
		now:            time.Now,
	}
	for action, lim := range limits {
		l.limits[action] = lim
	}
	return l
}

// SetLimit installs or replaces the budget for an action.
func (l *Limiter) SetLimit(action string, max int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[action] = Limit{Max: max, Window: window}
}

// SetLargeThreshold overrides the large-paste reclassification size.
func (l *Limiter) SetLargeThreshold(bytes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.largeThreshold = bytes
}

// classify re-routes oversized pastes to the large-paste budget.
// Caller holds l.mu.
func (l *Limiter) classify(action string, sizeHint int) string {
	if action == ActionPaste && sizeHint > l.largeThreshold {
		return ActionLargePaste
	}
	return action
}

// purge drops timestamps older than the action's window. Caller holds l.mu.
func (l *Limiter) purge(action string, lim Limit) {
	cutoff := l.now().Add(-lim.Window)
	ts := l.history[action]
	keep := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	l.history[action] = keep
}

// Allowed reports whether one more occurrence of action fits its budget.
// sizeHint may re-route a paste to the large-paste budget. Actions with
// no configured budget are always allowed.
func (l *Limiter) Allowed(action string, sizeHint int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	action = l.classify(action, sizeHint)
	lim, ok := l.limits[action]
	if !ok {
		return true
	}

	l.purge(action, lim)
	return len(l.history[action]) < lim.Max
}

// Record notes that action happened now. Unbudgeted actions are not
// tracked.
func (l *Limiter) Record(action string, sizeHint int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	action = l.classify(action, sizeHint)
	lim, ok := l.limits[action]
	if !ok {
		return
	}

	l.purge(action, lim)
	l.history[action] = append(l.history[action], l.now())
}

// Reset clears the recorded history for an action.
func (l *Limiter) Reset(action string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.history, action)
}

// RemainingQuota returns how many more occurrences of action fit inside
// the current window. The second result is false when the action has no
// budget (unlimited).
func (l *Limiter) RemainingQuota(action string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[action]
	if !ok {
		return 0, false
	}

	l.purge(action, lim)
	remaining := lim.Max - len(l.history[action])
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Snapshot serializes the recorded history as a flat
// {action: [unix-nano timestamps]} document for persistence across
// restarts.
func (l *Limiter) Snapshot() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := make(map[string][]int64, len(l.history))
	for action, ts := range l.history {
		nanos := make([]int64, len(ts))
		for i, t := range ts {
			nanos[i] = t.UnixNano()
		}
		state[action] = nanos
	}
	return json.Marshal(state)
}

// Restore replaces the recorded history from a Snapshot document.
// Stale timestamps are purged on the next check, not here.
func (l *Limiter) Restore(data []byte) error {
	var state map[string][]int64
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("ratelimit: restore state: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = make(map[string][]time.Time, len(state))
	for action, nanos := range state {
		ts := make([]time.Time, len(nanos))
		for i, n := range nanos {
			ts[i] = time.Unix(0, n)
		}
		l.history[action] = ts
	}
	return nil
}
