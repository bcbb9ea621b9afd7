package clipboard

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultHistorySize bounds the in-memory history ring.
const DefaultHistorySize = 100

// DefaultPollInterval is how often the clipboard is polled for changes.
const DefaultPollInterval = 500 * time.Millisecond

// Callback receives accepted clipboard entries. Callbacks run on the
// monitor goroutine in registration order; a panic in one callback does
// not prevent the others from firing.
type Callback func(*Entry)

// Gate is an admission check consulted before a change is accepted.
// Returning false discards the change without notifying callbacks.
type Gate func(content string) bool

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// HistorySize bounds the ring; zero means DefaultHistorySize.
	HistorySize int

	// PollInterval between clipboard reads; zero means DefaultPollInterval.
	PollInterval time.Duration

	// Logger for per-iteration errors; nil means slog.Default.
	Logger *slog.Logger
}

// Monitor polls the system clipboard, deduplicates against the last
// accepted change and maintains a bounded most-recent-first history.
type Monitor struct {
	accessor Accessor
	interval time.Duration
	logger   *slog.Logger

	mu              sync.Mutex
	history         []*Entry
	historySize     int
	callbacks       []Callback
	gate            Gate
	lastFingerprint string

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMonitor creates a monitor over the given clipboard accessor.
func NewMonitor(accessor Accessor, cfg MonitorConfig) *Monitor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		accessor:    accessor,
		interval:    cfg.PollInterval,
		logger:      cfg.Logger,
		historySize: cfg.HistorySize,
	}
}

// RegisterCallback adds a change observer. Observers are invoked in
// registration order for every accepted change.
func (m *Monitor) RegisterCallback(cb Callback) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.mu.Unlock()
}

// SetGate installs the capture admission check.
func (m *Monitor) SetGate(gate Gate) {
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
}

// StartMonitoring starts the background polling loop. Calling it while
// already monitoring is a no-op.
func (m *Monitor) StartMonitoring() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.loop(m.stopCh, m.doneCh)
}

// StopMonitoring signals the polling loop to exit and waits for it with
// a bounded timeout. A loop that fails to exit in time is logged and
// abandoned rather than blocking the caller.
func (m *Monitor) StopMonitoring() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)

	select {
	case <-m.doneCh:
	case <-time.After(m.interval + time.Second):
		m.logger.Warn("clipboard monitor did not stop in time")
	}
}

// IsMonitoring reports whether the polling loop is active.
func (m *Monitor) IsMonitoring() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

func (m *Monitor) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

// pollOnce performs a single monitoring iteration. Errors and callback
// panics are contained here: one bad iteration or one faulty observer
// must never terminate the loop or starve sibling observers.
func (m *Monitor) pollOnce() {
	content, err := m.accessor.ReadText()
	if err != nil {
		m.logger.Debug("clipboard read failed", "error", err)
		return
	}

	if strings.TrimSpace(content) == "" {
		return
	}

	fp := Fingerprint(content)

	m.mu.Lock()
	if fp == m.lastFingerprint {
		m.mu.Unlock()
		return
	}
	// Remember the fingerprint even for rejected content so a standing
	// clipboard value is not re-evaluated every tick. This also keeps
	// the tool's own transient clipboard writes from echoing back.
	m.lastFingerprint = fp
	gate := m.gate
	m.mu.Unlock()

	if gate != nil && !gate(content) {
		return
	}

	entry := NewEntry(content)

	m.mu.Lock()
	m.insertLocked(entry)
	callbacks := append([]Callback(nil), m.callbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		m.invoke(cb, entry)
	}
}

// invoke runs one callback, containing panics.
func (m *Monitor) invoke(cb Callback, entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("clipboard callback panicked", "panic", r)
		}
	}()
	cb(entry)
}

// insertLocked adds an entry at the front of the ring, evicting the
// oldest when at capacity. Caller holds m.mu.
func (m *Monitor) insertLocked(entry *Entry) {
	m.history = append([]*Entry{entry}, m.history...)
	if len(m.history) > m.historySize {
		m.history = m.history[:m.historySize]
	}
}

// GetHistory returns up to limit entries, most recent first. A non-
// positive limit returns the whole ring.
func (m *Monitor) GetHistory(limit int) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Entry, n)
	copy(out, m.history[:n])
	return out
}

// ClearHistory empties the ring and forgets the last fingerprint.
func (m *Monitor) ClearHistory() {
	m.mu.Lock()
	m.history = nil
	m.lastFingerprint = ""
	m.mu.Unlock()
}
