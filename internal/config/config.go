// Package config handles configuration loading, validation, and
// hot-reloading for pastad.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version"`

	// History configures capture and retention.
	History HistoryConfig `toml:"history" json:"history"`

	// Paste configures the playback engine.
	Paste PasteConfig `toml:"paste" json:"paste"`

	// Privacy configures capture exclusions.
	Privacy PrivacyConfig `toml:"privacy" json:"privacy"`

	// RateLimit configures per-action budgets.
	RateLimit RateLimitConfig `toml:"rate_limit" json:"rate_limit"`

	// Storage configures the database and key file locations.
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc"`

	// Hotkey configures the panic gesture.
	Hotkey HotkeyConfig `toml:"hotkey" json:"hotkey"`
}

// HistoryConfig holds capture and retention settings.
type HistoryConfig struct {
	// Size bounds the in-memory history ring.
	Size int `toml:"size" json:"size"`

	// RetentionDays is how long stored entries are kept. 0 disables
	// retention sweeping entirely.
	RetentionDays int `toml:"retention_days" json:"retention_days"`

	// PollIntervalMs is the clipboard poll interval in milliseconds.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms"`

	// EncryptSensitive encrypts classifier-flagged content at rest.
	EncryptSensitive bool `toml:"encrypt_sensitive" json:"encrypt_sensitive"`
}

// PasteConfig holds playback settings.
type PasteConfig struct {
	// Mode is the default replay method: "auto", "clipboard" or "typing".
	Mode string `toml:"mode" json:"mode"`

	// TypingSpeed is the baseline typing rate in characters per second.
	TypingSpeed int `toml:"typing_speed" json:"typing_speed"`

	// ChunkSize is the keystroke burst length.
	ChunkSize int `toml:"chunk_size" json:"chunk_size"`

	// AdaptiveDelay slows typing under system load.
	AdaptiveDelay bool `toml:"adaptive_delay" json:"adaptive_delay"`

	// ClipboardThreshold is the auto-mode cutover length.
	ClipboardThreshold int `toml:"clipboard_threshold" json:"clipboard_threshold"`
}

// PrivacyConfig holds capture exclusion settings.
type PrivacyConfig struct {
	// PrivacyMode suspends all capture while set.
	PrivacyMode bool `toml:"privacy_mode" json:"privacy_mode"`

	// ExcludedApps are case-insensitive window title substrings.
	ExcludedApps []string `toml:"excluded_apps" json:"excluded_apps"`

	// ExcludedPatterns are content regexes that block capture.
	ExcludedPatterns []string `toml:"excluded_patterns" json:"excluded_patterns"`
}

// RateLimitConfig holds the sliding-window budgets.
type RateLimitConfig struct {
	PasteMax               int `toml:"paste_max" json:"paste_max"`
	PasteWindowSec         int `toml:"paste_window_sec" json:"paste_window_sec"`
	ClipboardReadMax       int `toml:"clipboard_read_max" json:"clipboard_read_max"`
	ClipboardReadWindowSec int `toml:"clipboard_read_window_sec" json:"clipboard_read_window_sec"`
	LargePasteMax          int `toml:"large_paste_max" json:"large_paste_max"`
	LargePasteWindowSec    int `toml:"large_paste_window_sec" json:"large_paste_window_sec"`

	// LargeThresholdBytes reclassifies bigger pastes to the stricter
	// large-paste budget.
	LargeThresholdBytes int `toml:"large_threshold_bytes" json:"large_threshold_bytes"`
}

// StorageConfig holds file locations.
type StorageConfig struct {
	DatabasePath string `toml:"database_path" json:"database_path"`
	KeyPath      string `toml:"key_path" json:"key_path"`
	SnippetsPath string `toml:"snippets_path" json:"snippets_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level" json:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format"`

	// File is the log destination; empty logs to stderr.
	File string `toml:"file" json:"file"`
}

// IPCConfig holds control socket settings.
type IPCConfig struct {
	SocketPath string `toml:"socket_path" json:"socket_path"`
}

// HotkeyConfig holds the panic gesture settings.
type HotkeyConfig struct {
	// DoubleTapWindowMs is the double-Escape recognition window.
	DoubleTapWindowMs int `toml:"double_tap_window_ms" json:"double_tap_window_ms"`
}

// Default returns the default configuration.
func Default() *Config {
	dataDir := PlatformDataDir()
	return &Config{
		Version: Version,
		History: HistoryConfig{
			Size:             100,
			RetentionDays:    30,
			PollIntervalMs:   500,
			EncryptSensitive: true,
		},
		Paste: PasteConfig{
			Mode:               "auto",
			TypingSpeed:        100,
			ChunkSize:          200,
			AdaptiveDelay:      true,
			ClipboardThreshold: 5000,
		},
		Privacy: PrivacyConfig{},
		RateLimit: RateLimitConfig{
			PasteMax:               30,
			PasteWindowSec:         60,
			ClipboardReadMax:       100,
			ClipboardReadWindowSec: 60,
			LargePasteMax:          5,
			LargePasteWindowSec:    300,
			LargeThresholdBytes:    10000,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(dataDir, "history.db"),
			KeyPath:      filepath.Join(dataDir, "master.key"),
			SnippetsPath: filepath.Join(dataDir, "snippets.json"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		IPC: IPCConfig{
			SocketPath: DefaultSocketPath(),
		},
		Hotkey: HotkeyConfig{
			DoubleTapWindowMs: 500,
		},
	}
}

// ValidationError describes one rejected setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting against its allowed range. All
// violations are reported together.
func (c *Config) Validate() error {
	var errs ValidationErrors

	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version < 1 || c.Version > Version {
		add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	if c.History.Size < 1 || c.History.Size > 10000 {
		add("history.size", "must be 1..10000, got %d", c.History.Size)
	}
	if c.History.RetentionDays < 0 || c.History.RetentionDays > 365 {
		add("history.retention_days", "must be 0..365, got %d", c.History.RetentionDays)
	}
	if c.History.PollIntervalMs < 50 || c.History.PollIntervalMs > 10000 {
		add("history.poll_interval_ms", "must be 50..10000, got %d", c.History.PollIntervalMs)
	}

	switch c.Paste.Mode {
	case "auto", "clipboard", "typing":
	default:
		add("paste.mode", "must be auto, clipboard or typing, got %q", c.Paste.Mode)
	}
	if c.Paste.TypingSpeed < 1 || c.Paste.TypingSpeed > 1000 {
		add("paste.typing_speed", "must be 1..1000, got %d", c.Paste.TypingSpeed)
	}
	if c.Paste.ChunkSize < 10 || c.Paste.ChunkSize > 1000 {
		add("paste.chunk_size", "must be 10..1000, got %d", c.Paste.ChunkSize)
	}
	if c.Paste.ClipboardThreshold < 1 {
		add("paste.clipboard_threshold", "must be positive, got %d", c.Paste.ClipboardThreshold)
	}

	for field, v := range map[string]int{
		"rate_limit.paste_max":                 c.RateLimit.PasteMax,
		"rate_limit.paste_window_sec":          c.RateLimit.PasteWindowSec,
		"rate_limit.clipboard_read_max":        c.RateLimit.ClipboardReadMax,
		"rate_limit.clipboard_read_window_sec": c.RateLimit.ClipboardReadWindowSec,
		"rate_limit.large_paste_max":           c.RateLimit.LargePasteMax,
		"rate_limit.large_paste_window_sec":    c.RateLimit.LargePasteWindowSec,
		"rate_limit.large_threshold_bytes":     c.RateLimit.LargeThresholdBytes,
	} {
		if v < 1 {
			add(field, "must be positive, got %d", v)
		}
	}

	if c.Storage.DatabasePath == "" {
		add("storage.database_path", "must not be empty")
	}
	if c.Storage.KeyPath == "" {
		add("storage.key_path", "must not be empty")
	}
	if c.Storage.SnippetsPath == "" {
		add("storage.snippets_path", "must not be empty")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "must be text or json, got %q", c.Logging.Format)
	}

	if c.Hotkey.DoubleTapWindowMs < 100 || c.Hotkey.DoubleTapWindowMs > 5000 {
		add("hotkey.double_tap_window_ms", "must be 100..5000, got %d", c.Hotkey.DoubleTapWindowMs)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// PollInterval returns the clipboard poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.History.PollIntervalMs) * time.Millisecond
}

// RetentionAge returns the retention window, or 0 when disabled.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// TypingBaseInterval derives the per-chunk pause from the typing speed.
func (c *Config) TypingBaseInterval() time.Duration {
	speed := c.Paste.TypingSpeed
	if speed < 1 {
		speed = 100
	}
	return time.Second / time.Duration(speed)
}

// PlatformDataDir returns the platform data directory.
//
//   - macOS:   ~/Library/Application Support/pastad/
//   - Linux:   ~/.local/share/pastad/
//   - Windows: %APPDATA%\pastad\
func PlatformDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "pastad")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "pastad")
		}
		return filepath.Join(home, "pastad")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "pastad")
		}
		return filepath.Join(home, ".local", "share", "pastad")
	}
}

// PlatformConfigDir returns the platform config directory.
func PlatformConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "pastad")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "pastad")
		}
		return filepath.Join(home, "pastad")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "pastad")
		}
		return filepath.Join(home, ".config", "pastad")
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DefaultSocketPath returns the default control socket location.
func DefaultSocketPath() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "pastad.sock")
	}
	return filepath.Join(os.TempDir(), "pastad.sock")
}
