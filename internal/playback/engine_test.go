package playback

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pastad/internal/ratelimit"
)

// fakeBackend records emitted keystrokes.
type fakeBackend struct {
	mu        sync.Mutex
	typed     []string
	intervals []time.Duration
	combos    []string
	presses   []string

	typeErr  error
	comboErr error

	pointerX   int
	pointerY   int
	pointerErr error

	started chan struct{} // signaled when TypeText begins
	release chan struct{} // TypeText blocks on this when non-nil
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{pointerX: 500, pointerY: 500}
}

func (b *fakeBackend) TypeText(text string, interval time.Duration) error {
	if b.started != nil {
		select {
		case b.started <- struct{}{}:
		default:
		}
	}
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	b.typed = append(b.typed, text)
	b.intervals = append(b.intervals, interval)
	b.mu.Unlock()
	return b.typeErr
}

func (b *fakeBackend) KeyCombo(modifier, key string) error {
	b.mu.Lock()
	b.combos = append(b.combos, modifier+"+"+key)
	b.mu.Unlock()
	return b.comboErr
}

func (b *fakeBackend) KeyPress(key string) error {
	b.mu.Lock()
	b.presses = append(b.presses, key)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) PointerPosition() (int, int, error) {
	return b.pointerX, b.pointerY, b.pointerErr
}

func (b *fakeBackend) typedJoined() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.typed, "")
}

// fakeClip is an in-memory clipboard.
type fakeClip struct {
	mu      sync.Mutex
	content string
	readErr error
	writes  []string
}

func (c *fakeClip) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content, c.readErr
}

func (c *fakeClip) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = text
	c.writes = append(c.writes, text)
	return nil
}

func newTestEngine(b Backend, c *fakeClip, cfg EngineConfig) *Engine {
	if cfg.Pacer == nil {
		cfg.Pacer = NewPacer(fixedSampler{}, time.Millisecond, 2*time.Millisecond)
	}
	e := NewEngine(b, c, cfg)
	e.sleep = func(time.Duration) {}
	return e
}

type fixedSampler struct {
	cpu float64
	mem float64
}

func (s fixedSampler) CPUPercent() float64    { return s.cpu }
func (s fixedSampler) MemoryPercent() float64 { return s.mem }

func TestAutoSelectsClipboardForShortText(t *testing.T) {
	b := newFakeBackend()
	c := &fakeClip{content: "before"}
	e := newTestEngine(b, c, EngineConfig{})

	if !e.Paste(strings.Repeat("x", 100), MethodAuto) {
		t.Fatal("Paste failed")
	}
	if len(b.combos) != 1 {
		t.Fatalf("combos = %v, want one paste chord", b.combos)
	}
	if len(b.typed) != 0 {
		t.Fatalf("short auto paste should not type, typed %v", b.typed)
	}
}

func TestAutoSelectsTypingForLongText(t *testing.T) {
	b := newFakeBackend()
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{})

	text := strings.Repeat("x", 6000)
	if !e.Paste(text, MethodAuto) {
		t.Fatal("Paste failed")
	}
	if len(b.combos) != 0 {
		t.Fatalf("long auto paste should not use the clipboard chord, got %v", b.combos)
	}
	if b.typedJoined() != text {
		t.Fatal("typed output does not reconstruct the payload")
	}
}

func TestUnrecognizedMethodBehavesLikeAuto(t *testing.T) {
	b := newFakeBackend()
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{})

	if !e.Paste("short", Method("teleport")) {
		t.Fatal("Paste failed")
	}
	if len(b.combos) != 1 {
		t.Fatalf("combos = %v, want clipboard strategy", b.combos)
	}
}

func TestTypingChunkingReconstructsText(t *testing.T) {
	b := newFakeBackend()
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{ChunkSize: 2})

	text := "abcde\r\nfg\rhij"
	if !e.Paste(text, MethodTyping) {
		t.Fatal("Paste failed")
	}

	// All chunks concatenated reconstruct the normalized text minus
	// newlines; every newline becomes an Enter press.
	want := "abcdefghij"
	if got := b.typedJoined(); got != want {
		t.Errorf("typed = %q, want %q", got, want)
	}
	if len(b.presses) != 2 {
		t.Errorf("enter presses = %d, want 2", len(b.presses))
	}
	for _, chunk := range b.typed {
		if len(chunk) > 2 {
			t.Errorf("chunk %q exceeds chunk size", chunk)
		}
	}
}

func TestTypingEmptyLines(t *testing.T) {
	b := newFakeBackend()
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{})

	if !e.Paste("a\n\nb", MethodTyping) {
		t.Fatal("Paste failed")
	}
	if b.typedJoined() != "ab" {
		t.Errorf("typed = %q", b.typedJoined())
	}
	if len(b.presses) != 2 {
		t.Errorf("enter presses = %d, want 2", len(b.presses))
	}
}

// rampSampler reports rising CPU load on each sample.
type rampSampler struct {
	cpu float64
}

func (s *rampSampler) CPUPercent() float64 {
	s.cpu += 30
	if s.cpu > 100 {
		s.cpu = 100
	}
	return s.cpu
}

func (s *rampSampler) MemoryPercent() float64 { return 0 }

func TestTypingRepacesPerChunk(t *testing.T) {
	b := newFakeBackend()
	c := &fakeClip{}

	p := NewPacer(&rampSampler{}, 10*time.Millisecond, 110*time.Millisecond)
	tick := time.Now()
	p.now = func() time.Time {
		tick = tick.Add(3 * time.Second)
		return tick
	}
	e := newTestEngine(b, c, EngineConfig{ChunkSize: 2, Pacer: p})

	if !e.Paste("abcdef", MethodTyping) {
		t.Fatal("Paste failed")
	}

	b.mu.Lock()
	intervals := append([]time.Duration(nil), b.intervals...)
	b.mu.Unlock()
	if len(intervals) != 3 {
		t.Fatalf("chunks = %d, want 3", len(intervals))
	}
	for i := 1; i < len(intervals); i++ {
		if intervals[i] <= intervals[i-1] {
			t.Fatalf("interval did not grow with load across chunks: %v", intervals)
		}
	}
}

func TestClipboardRestoresSnapshot(t *testing.T) {
	b := newFakeBackend()
	c := &fakeClip{content: "the user's real clipboard"}
	e := newTestEngine(b, c, EngineConfig{})

	if !e.Paste("payload", MethodClipboard) {
		t.Fatal("Paste failed")
	}
	if c.content != "the user's real clipboard" {
		t.Errorf("clipboard not restored, content = %q", c.content)
	}
	if len(c.writes) != 2 || c.writes[0] != "payload" {
		t.Errorf("writes = %v", c.writes)
	}
}

func TestClipboardRestoresEvenWhenKeystrokeFails(t *testing.T) {
	b := newFakeBackend()
	b.comboErr = errors.New("no display")
	c := &fakeClip{content: "precious"}
	e := newTestEngine(b, c, EngineConfig{})

	if e.Paste("payload", MethodClipboard) {
		t.Fatal("Paste should fail when the chord fails")
	}
	if c.content != "precious" {
		t.Errorf("clipboard not restored after failure, content = %q", c.content)
	}
}

func TestTypingFailsOnKeystrokeError(t *testing.T) {
	b := newFakeBackend()
	b.typeErr = errors.New("no display")
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{})

	if e.Paste("some text to type", MethodTyping) {
		t.Fatal("Paste should report failure")
	}
	if e.IsActive() {
		t.Error("engine should be inactive after failure")
	}
}

func TestPointerAtOriginStopsTyping(t *testing.T) {
	b := newFakeBackend()
	b.pointerX, b.pointerY = 0, 0
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{})

	if e.Paste("emergency stop me", MethodTyping) {
		t.Fatal("Paste should fail on the pointer fail-safe")
	}
	if len(b.typed) != 0 {
		t.Errorf("no chunks should be typed, got %v", b.typed)
	}
}

func TestPointerErrorDisablesFailsafe(t *testing.T) {
	b := newFakeBackend()
	b.pointerX, b.pointerY = 0, 0
	b.pointerErr = errors.New("unsupported")
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{})

	if !e.Paste("keep typing", MethodTyping) {
		t.Fatal("unreadable pointer must not trigger the fail-safe")
	}
}

func TestAbortDuringTyping(t *testing.T) {
	b := newFakeBackend()
	b.started = make(chan struct{}, 1)
	b.release = make(chan struct{})
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{ChunkSize: 4})

	var cbCount int
	var cbMu sync.Mutex
	e.SetAbortCallback(func() {
		cbMu.Lock()
		cbCount++
		cbMu.Unlock()
	})

	result := make(chan bool, 1)
	go func() {
		result <- e.Paste(strings.Repeat("chunked text ", 50), MethodTyping)
	}()

	select {
	case <-b.started:
	case <-time.After(2 * time.Second):
		t.Fatal("typing never started")
	}

	e.Abort()
	close(b.release)

	select {
	case ok := <-result:
		if ok {
			t.Fatal("aborted paste must report failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("paste did not return after abort")
	}

	cbMu.Lock()
	if cbCount != 1 {
		t.Errorf("abort callback fired %d times, want 1", cbCount)
	}
	cbMu.Unlock()
	if e.IsActive() {
		t.Error("engine should be inactive after abort")
	}

	// The abort latches until cleared.
	if e.Paste("short", MethodClipboard) {
		t.Fatal("paste must refuse while the abort flag is set")
	}
	e.ClearAbort()
	if !e.Paste("short", MethodClipboard) {
		t.Fatal("paste should succeed after ClearAbort")
	}
}

func TestRateLimiterGatesPaste(t *testing.T) {
	limiter := ratelimit.NewWithLimits(map[string]ratelimit.Limit{
		ratelimit.ActionPaste: {Max: 1, Window: time.Minute},
	})
	b := newFakeBackend()
	c := &fakeClip{}
	e := newTestEngine(b, c, EngineConfig{Limiter: limiter})

	if !e.Paste("first", MethodClipboard) {
		t.Fatal("first paste should pass")
	}
	if e.Paste("second", MethodClipboard) {
		t.Fatal("second paste should be throttled")
	}
}

func TestEmptyPayloadFails(t *testing.T) {
	e := newTestEngine(newFakeBackend(), &fakeClip{}, EngineConfig{})
	if e.Paste("", MethodAuto) {
		t.Fatal("empty payload must fail")
	}
}

func TestSplitChunksPreservesRunes(t *testing.T) {
	chunks := splitChunks("héllo wörld", 3)
	if strings.Join(chunks, "") != "héllo wörld" {
		t.Errorf("chunks = %v", chunks)
	}
	for _, chunk := range chunks {
		if n := len([]rune(chunk)); n > 3 {
			t.Errorf("chunk %q has %d runes", chunk, n)
		}
	}
	if splitChunks("", 3) != nil {
		t.Error("empty string should yield no chunks")
	}
}
