// Package visibility reference-counts interest in a shared surface,
// such as a popup history panel that several triggers can request.
package visibility

import (
	"log/slog"
	"sync"
)

// Setter is notified when the surface should be shown or hidden.
type Setter func(visible bool)

// Tracker turns overlapping Acquire/Release pairs into edge-triggered
// show/hide calls. The count never goes below zero; extra Releases are
// logged and ignored.
type Tracker struct {
	setter Setter
	logger *slog.Logger

	mu    sync.Mutex
	count int
}

// NewTracker creates a tracker over the given setter.
func NewTracker(setter Setter, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{setter: setter, logger: logger}
}

// Acquire registers interest. The setter fires only on the 0 -> 1 edge.
func (t *Tracker) Acquire() {
	t.mu.Lock()
	t.count++
	show := t.count == 1
	setter := t.setter
	t.mu.Unlock()

	if show && setter != nil {
		setter(true)
	}
}

// Release drops interest. The setter fires only on the 1 -> 0 edge.
func (t *Tracker) Release() {
	t.mu.Lock()
	if t.count == 0 {
		t.mu.Unlock()
		t.logger.Warn("visibility release without acquire")
		return
	}
	t.count--
	hide := t.count == 0
	setter := t.setter
	t.mu.Unlock()

	if hide && setter != nil {
		setter(false)
	}
}

// Count returns the current holder count.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
