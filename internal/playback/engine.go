package playback

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"pastad/internal/clipboard"
	"pastad/internal/ratelimit"
)

// Method selects the replay strategy.
type Method string

const (
	MethodAuto      Method = "auto"
	MethodClipboard Method = "clipboard"
	MethodTyping    Method = "typing"
)

const (
	// DefaultClipboardThreshold is the auto cutover: shorter payloads
	// use the clipboard strategy, longer ones are typed.
	DefaultClipboardThreshold = 5000

	// DefaultChunkSize is the keystroke burst length for typing.
	DefaultChunkSize = 200

	clipboardSettleDelay = 150 * time.Millisecond
	focusGraceDelay      = 500 * time.Millisecond
	enterPreDelay        = 50 * time.Millisecond
	enterPostDelay       = 100 * time.Millisecond
)

// EngineConfig configures an Engine. Zero-value fields use defaults.
type EngineConfig struct {
	ClipboardThreshold int
	ChunkSize          int

	// Limiter gates paste admission. Nil disables throttling.
	Limiter *ratelimit.Limiter

	// Pacer supplies the typing interval. Nil uses a system-load pacer.
	Pacer *Pacer

	Logger *slog.Logger
}

// Engine replays text through a Backend. One replay runs at a time;
// Abort stops an in-flight typing sequence at the next chunk boundary
// and latches until ClearAbort.
type Engine struct {
	backend   Backend
	clip      clipboard.Accessor
	limiter   *ratelimit.Limiter
	pacer     *Pacer
	logger    *slog.Logger
	threshold int
	chunkSize int

	// sleep is swapped out by tests.
	sleep func(time.Duration)

	mu            sync.Mutex
	active        bool
	aborted       bool
	abortCallback func()
}

// NewEngine creates a playback engine over the given keystroke backend
// and clipboard accessor.
func NewEngine(backend Backend, clip clipboard.Accessor, cfg EngineConfig) *Engine {
	if cfg.ClipboardThreshold <= 0 {
		cfg.ClipboardThreshold = DefaultClipboardThreshold
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Pacer == nil {
		cfg.Pacer = NewPacer(nil, 0, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		backend:   backend,
		clip:      clip,
		limiter:   cfg.Limiter,
		pacer:     cfg.Pacer,
		logger:    cfg.Logger,
		threshold: cfg.ClipboardThreshold,
		chunkSize: cfg.ChunkSize,
		sleep:     time.Sleep,
	}
}

// SetAbortCallback registers the function invoked on every Abort call.
func (e *Engine) SetAbortCallback(fn func()) {
	e.mu.Lock()
	e.abortCallback = fn
	e.mu.Unlock()
}

// IsActive reports whether a replay is in flight.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Abort requests a cooperative stop. The flag latches: Paste refuses to
// run until ClearAbort, so a stale abort is never silently ignored.
func (e *Engine) Abort() {
	e.mu.Lock()
	e.aborted = true
	e.active = false
	cb := e.abortCallback
	e.mu.Unlock()

	e.logger.Info("playback abort requested")
	if cb != nil {
		cb()
	}
}

// ClearAbort releases a latched abort so the next Paste can proceed.
func (e *Engine) ClearAbort() {
	e.mu.Lock()
	e.aborted = false
	e.mu.Unlock()
}

// Paste replays text using the given method and reports success. An
// unrecognized method behaves like auto. Only one replay runs at a
// time; overlapping calls fail.
func (e *Engine) Paste(text string, method Method) bool {
	if text == "" {
		return false
	}

	if e.limiter != nil && !e.limiter.Allowed(ratelimit.ActionPaste, len(text)) {
		e.logger.Warn("paste denied by rate limiter", "size", len(text))
		return false
	}

	e.mu.Lock()
	if e.aborted {
		e.mu.Unlock()
		e.logger.Warn("paste refused: abort flag still set")
		return false
	}
	if e.active {
		e.mu.Unlock()
		e.logger.Warn("paste refused: replay already in flight")
		return false
	}
	e.active = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
	}()

	if e.limiter != nil {
		e.limiter.Record(ratelimit.ActionPaste, len(text))
	}

	switch e.resolveMethod(text, method) {
	case MethodClipboard:
		return e.pasteClipboard(text)
	default:
		return e.pasteTyping(text)
	}
}

func (e *Engine) resolveMethod(text string, method Method) Method {
	switch method {
	case MethodClipboard, MethodTyping:
		return method
	}
	if len(text) < e.threshold {
		return MethodClipboard
	}
	return MethodTyping
}

// pasteClipboard snapshots the clipboard, writes the payload, issues
// the paste chord, and restores the snapshot. Restoration happens even
// when the chord fails so the user's clipboard content never leaks.
func (e *Engine) pasteClipboard(text string) (ok bool) {
	snapshot, err := e.clip.ReadText()
	restore := err == nil
	if err != nil {
		e.logger.Debug("clipboard snapshot failed", "error", err)
	}

	if err := e.clip.WriteText(text); err != nil {
		e.logger.Error("clipboard write failed", "error", err)
		return false
	}

	defer func() {
		if !restore {
			return
		}
		if err := e.clip.WriteText(snapshot); err != nil {
			e.logger.Warn("clipboard restore failed", "error", err)
		}
	}()

	if err := e.backend.KeyCombo(pasteModifier(), "v"); err != nil {
		e.logger.Error("paste keystroke failed", "error", err)
		return false
	}

	e.sleep(clipboardSettleDelay)
	return true
}

// pasteTyping types the payload line by line in fixed-size chunks,
// checking the abort flag and the pointer fail-safe around every burst.
func (e *Engine) pasteTyping(text string) bool {
	text = normalizeNewlines(text)
	lines := strings.Split(text, "\n")

	// Multi-line input gets a focus-acquisition grace period so the
	// first line does not land in the wrong field.
	if len(lines) > 1 {
		e.sleep(focusGraceDelay)
	}

	for i, line := range lines {
		for _, chunk := range splitChunks(line, e.chunkSize) {
			if e.stopped() {
				return false
			}
			// Per-chunk consult so a long replay slows down when the
			// system does; the pacer caches between recomputations.
			interval := e.pacer.Interval()
			if err := e.backend.TypeText(chunk, interval); err != nil {
				e.logger.Error("typing keystroke failed", "error", err)
				return false
			}
			if e.stopped() {
				return false
			}
			e.sleep(interval)
		}

		if i < len(lines)-1 {
			if e.stopped() {
				return false
			}
			e.sleep(enterPreDelay)
			if err := e.backend.KeyPress("enter"); err != nil {
				e.logger.Error("enter keystroke failed", "error", err)
				return false
			}
			e.sleep(enterPostDelay)
		}
	}

	return true
}

// stopped checks the two independent stop conditions: the cooperative
// abort flag and the pointer-at-origin emergency gesture.
func (e *Engine) stopped() bool {
	e.mu.Lock()
	aborted := e.aborted
	e.mu.Unlock()
	if aborted {
		e.logger.Info("typing halted by abort")
		return true
	}

	x, y, err := e.backend.PointerPosition()
	if err != nil {
		// Fail-safe unavailable; the abort flag remains in force.
		return false
	}
	if x == 0 && y == 0 {
		e.logger.Warn("pointer at origin, emergency stop")
		return true
	}
	return false
}

// normalizeNewlines folds \r\n and bare \r into \n.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// splitChunks cuts s into size-bounded pieces without splitting runes.
func splitChunks(s string, size int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	current := make([]rune, 0, size)
	for _, r := range s {
		current = append(current, r)
		if len(current) == size {
			chunks = append(chunks, string(current))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}
