// Package daemon wires the capture, storage and playback subsystems
// together and exposes them over the control socket.
//
// The daemon owns component lifecycles: it builds everything from a
// validated Config, starts the clipboard monitor and IPC server, runs
// the retention sweeper, and tears it all down in reverse order on
// Stop. Admission control sits between the monitor and the store so a
// runaway clipboard writer cannot flood the database.
package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"pastad/internal/clipboard"
	"pastad/internal/config"
	"pastad/internal/focus"
	"pastad/internal/hotkey"
	"pastad/internal/ipc"
	"pastad/internal/playback"
	"pastad/internal/privacy"
	"pastad/internal/ratelimit"
	"pastad/internal/sensitive"
	"pastad/internal/snippets"
	"pastad/internal/store"
	"pastad/internal/visibility"
)

// Version is surfaced by the status operation. Overridden at link time
// by release builds.
var Version = "dev"

const sweepInterval = time.Hour

// rateStateFile persists limiter windows across restarts so a restart
// does not reset the paste budget.
const rateStateFile = "ratelimit.json"

// Options overrides platform-backed components. Zero values select the
// real system implementations.
type Options struct {
	// Accessor is the clipboard used for both capture and replay.
	Accessor clipboard.Accessor

	// Backend injects keystrokes during replay.
	Backend playback.Backend

	// Titler reports the focused window title for privacy checks.
	Titler focus.Titler
}

// Daemon is the long-running service behind pastad.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	detector *sensitive.Detector
	guard    *privacy.Guard
	limiter  *ratelimit.Limiter
	store    *store.Store
	snippets *snippets.Manager
	titler   focus.Titler
	monitor  *clipboard.Monitor
	engine   *playback.Engine
	panicTap *hotkey.DoubleTap
	panel    *visibility.Tracker
	server   *ipc.Server

	// panelVisible mirrors the tracker's edge-triggered state for
	// status reporting.
	panelVisible atomic.Bool

	// ratePath is fixed at construction; storage paths do not change
	// across a reload.
	ratePath string

	startedAt time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New builds a daemon from a validated configuration. The store is
// opened here so configuration problems surface before Start.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logger.With("component", "daemon"),
		detector:   sensitive.NewDetector(),
		ratePath:   filepath.Join(filepath.Dir(cfg.Storage.DatabasePath), rateStateFile),
		shutdownCh: make(chan struct{}),
	}

	d.guard = privacy.NewGuard(privacy.DefaultExcludedApps)
	if err := d.applyPrivacyConfig(cfg.Privacy); err != nil {
		return nil, err
	}

	d.limiter = limiterFromConfig(cfg.RateLimit)

	st, err := store.Open(store.Options{
		DatabasePath:     cfg.Storage.DatabasePath,
		KeyPath:          cfg.Storage.KeyPath,
		Detector:         d.detector,
		EncryptSensitive: cfg.History.EncryptSensitive,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	d.store = st

	sm, err := snippets.NewManager(cfg.Storage.SnippetsPath, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open snippet library: %w", err)
	}
	d.snippets = sm

	d.titler = opts.Titler
	if d.titler == nil {
		d.titler = focus.NewSystemTitler(logger)
	}

	accessor := opts.Accessor
	if accessor == nil {
		accessor = clipboard.NewSystemAccessor()
	}

	d.monitor = clipboard.NewMonitor(accessor, clipboard.MonitorConfig{
		HistorySize:  cfg.History.Size,
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
	})
	d.monitor.SetGate(d.admitCapture)
	d.monitor.RegisterCallback(d.persistEntry)

	backend := opts.Backend
	if backend == nil {
		backend = playback.NewSystemBackend()
	}
	d.engine = playback.NewEngine(backend, accessor, playback.EngineConfig{
		ClipboardThreshold: cfg.Paste.ClipboardThreshold,
		ChunkSize:          cfg.Paste.ChunkSize,
		Limiter:            d.limiter,
		Pacer:              pacerFromConfig(cfg.Paste),
		Logger:             logger,
	})
	d.engine.SetAbortCallback(func() {
		d.logger.Warn("replay aborted")
	})

	d.panicTap = hotkey.NewDoubleTap(
		time.Duration(cfg.Hotkey.DoubleTapWindowMs)*time.Millisecond,
		d.engine.Abort,
		logger,
	)

	d.panel = visibility.NewTracker(func(visible bool) {
		d.panelVisible.Store(visible)
		d.logger.Debug("history panel visibility changed", "visible", visible)
	}, logger)

	d.server = ipc.NewServer(cfg.IPC.SocketPath, logger)
	d.registerHandlers()

	return d, nil
}

// applyPrivacyConfig layers the configured exclusions on top of the
// built-in defaults.
func (d *Daemon) applyPrivacyConfig(pc config.PrivacyConfig) error {
	d.guard.SetPrivacyMode(pc.PrivacyMode)
	for _, app := range pc.ExcludedApps {
		d.guard.AddExcludedApp(app)
	}
	for _, expr := range pc.ExcludedPatterns {
		if err := d.guard.AddExcludedPattern(expr); err != nil {
			return fmt.Errorf("excluded pattern %q: %w", expr, err)
		}
	}
	return nil
}

func limiterFromConfig(rc config.RateLimitConfig) *ratelimit.Limiter {
	l := ratelimit.NewWithLimits(map[string]ratelimit.Limit{
		ratelimit.ActionPaste:         {Max: rc.PasteMax, Window: time.Duration(rc.PasteWindowSec) * time.Second},
		ratelimit.ActionClipboardRead: {Max: rc.ClipboardReadMax, Window: time.Duration(rc.ClipboardReadWindowSec) * time.Second},
		ratelimit.ActionLargePaste:    {Max: rc.LargePasteMax, Window: time.Duration(rc.LargePasteWindowSec) * time.Second},
	})
	l.SetLargeThreshold(rc.LargeThresholdBytes)
	return l
}

// pacerFromConfig maps the configured typing speed onto pacer bounds.
// With adaptive delay off the interval is pinned to the baseline.
func pacerFromConfig(pc config.PasteConfig) *playback.Pacer {
	base := time.Second / time.Duration(pc.TypingSpeed)
	if base <= 0 {
		base = playback.DefaultBaseInterval
	}
	if !pc.AdaptiveDelay {
		return playback.NewPacer(nil, base, base)
	}
	return playback.NewPacer(nil, base, 6*base)
}

// admitCapture is the monitor gate: rate limit first, then privacy.
func (d *Daemon) admitCapture(content string) bool {
	if !d.limiter.Allowed(ratelimit.ActionClipboardRead, 0) {
		d.logger.Warn("clipboard read budget exhausted, dropping change")
		return false
	}
	d.limiter.Record(ratelimit.ActionClipboardRead, 0)
	return d.guard.ShouldCapture(content, d.titler.ActiveWindowTitle())
}

// persistEntry writes an admitted clipboard change to the store.
func (d *Daemon) persistEntry(e *clipboard.Entry) {
	if err := d.store.Save(e); err != nil {
		d.logger.Error("persist clipboard entry", "error", err)
		return
	}
	d.logger.Debug("captured entry",
		"id", e.ID,
		"type", e.ContentType,
		"size", len(e.Content),
		"encrypted", e.Encrypted)
}

// Start brings up the monitor, IPC server and retention sweeper.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	d.restoreLimiterState()

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("ipc server: %w", err)
	}
	d.monitor.StartMonitoring()

	d.stopCh = make(chan struct{})
	d.wg.Add(1)
	go d.sweepLoop(d.stopCh)

	d.startedAt = time.Now()
	d.running = true
	d.logger.Info("daemon started",
		"socket", d.cfg.IPC.SocketPath,
		"database", d.cfg.Storage.DatabasePath,
		"install_id", d.store.InstallID().String())
	return nil
}

// Stop tears the daemon down in reverse start order. Safe to call more
// than once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	if d.engine.IsActive() {
		d.engine.Abort()
	}
	if err := d.server.Stop(); err != nil {
		d.logger.Warn("stop ipc server", "error", err)
	}
	d.monitor.StopMonitoring()
	d.wg.Wait()

	d.saveLimiterState()
	if err := d.store.Close(); err != nil {
		d.logger.Warn("close store", "error", err)
	}
	d.logger.Info("daemon stopped")
}

// ShutdownRequested is closed when a client asks the daemon to exit.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdownCh
}

func (d *Daemon) requestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

// PanicTap feeds one Escape press into the panic gesture recognizer.
// Returns true when the tap completed a double press and aborted replay.
func (d *Daemon) PanicTap() bool {
	return d.panicTap.Tap()
}

// Reload applies a changed configuration in place. Only settings that
// can change without a component rebuild are applied; storage and
// socket paths require a restart.
func (d *Daemon) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	d.limiter.SetLimit(ratelimit.ActionPaste,
		cfg.RateLimit.PasteMax, time.Duration(cfg.RateLimit.PasteWindowSec)*time.Second)
	d.limiter.SetLimit(ratelimit.ActionClipboardRead,
		cfg.RateLimit.ClipboardReadMax, time.Duration(cfg.RateLimit.ClipboardReadWindowSec)*time.Second)
	d.limiter.SetLimit(ratelimit.ActionLargePaste,
		cfg.RateLimit.LargePasteMax, time.Duration(cfg.RateLimit.LargePasteWindowSec)*time.Second)
	d.limiter.SetLargeThreshold(cfg.RateLimit.LargeThresholdBytes)

	d.guard.ClearExclusions()
	for _, app := range privacy.DefaultExcludedApps {
		d.guard.AddExcludedApp(app)
	}
	if err := d.applyPrivacyConfig(cfg.Privacy); err != nil {
		return err
	}

	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	d.logger.Info("configuration reloaded")
	return nil
}

// sweepLoop deletes expired history on a fixed cadence. A zero
// retention age disables sweeping.
func (d *Daemon) sweepLoop(stopCh chan struct{}) {
	defer d.wg.Done()

	d.sweepOnce()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			d.sweepOnce()
		}
	}
}

func (d *Daemon) config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Daemon) sweepOnce() {
	age := d.config().RetentionAge()
	if age <= 0 {
		return
	}
	n, err := d.store.SweepRetention(age)
	if err != nil {
		d.logger.Error("retention sweep", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("retention sweep removed entries", "count", n)
	}
}

func (d *Daemon) restoreLimiterState() {
	data, err := os.ReadFile(d.ratePath)
	if err != nil {
		return
	}
	if err := d.limiter.Restore(data); err != nil {
		d.logger.Warn("restore rate limiter state", "error", err)
	}
}

func (d *Daemon) saveLimiterState() {
	data, err := d.limiter.Snapshot()
	if err != nil {
		d.logger.Warn("snapshot rate limiter state", "error", err)
		return
	}
	if err := os.WriteFile(d.ratePath, data, 0600); err != nil {
		d.logger.Warn("write rate limiter state", "error", err)
	}
}
