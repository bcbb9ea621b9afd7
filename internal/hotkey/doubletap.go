// Package hotkey recognizes key-tap gestures. The daemon uses a double
// Escape tap as the panic gesture that aborts an in-flight replay.
package hotkey

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultTapWindow is how close together two taps must land to count
// as a double tap.
const DefaultTapWindow = 500 * time.Millisecond

// DoubleTap fires a callback when two taps arrive within the window.
// A third rapid tap starts a new gesture rather than re-firing.
type DoubleTap struct {
	window   time.Duration
	callback func()
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	lastTap time.Time
}

// NewDoubleTap creates a detector. A non-positive window uses
// DefaultTapWindow.
func NewDoubleTap(window time.Duration, callback func(), logger *slog.Logger) *DoubleTap {
	if window <= 0 {
		window = DefaultTapWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DoubleTap{
		window:   window,
		callback: callback,
		logger:   logger,
		now:      time.Now,
	}
}

// Tap records one key tap and reports whether it completed a double
// tap. The callback runs outside the lock.
func (d *DoubleTap) Tap() bool {
	now := d.now()

	d.mu.Lock()
	fired := !d.lastTap.IsZero() && now.Sub(d.lastTap) <= d.window
	if fired {
		// Reset so a triple tap does not fire twice.
		d.lastTap = time.Time{}
	} else {
		d.lastTap = now
	}
	cb := d.callback
	d.mu.Unlock()

	if fired {
		d.logger.Info("double tap detected")
		if cb != nil {
			cb()
		}
	}
	return fired
}

// Reset forgets any pending first tap.
func (d *DoubleTap) Reset() {
	d.mu.Lock()
	d.lastTap = time.Time{}
	d.mu.Unlock()
}
