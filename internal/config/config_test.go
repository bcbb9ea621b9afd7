package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, 100, cfg.History.Size)
	assert.Equal(t, "auto", cfg.Paste.Mode)
	assert.True(t, cfg.History.EncryptSensitive)
	assert.Contains(t, cfg.Storage.DatabasePath, "pastad")
	assert.Contains(t, cfg.Storage.KeyPath, "pastad")
	assert.Contains(t, cfg.Storage.SnippetsPath, "pastad")
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"history size too small", func(c *Config) { c.History.Size = 0 }, "history.size"},
		{"history size too big", func(c *Config) { c.History.Size = 20000 }, "history.size"},
		{"negative retention", func(c *Config) { c.History.RetentionDays = -1 }, "history.retention_days"},
		{"retention too long", func(c *Config) { c.History.RetentionDays = 1000 }, "history.retention_days"},
		{"poll too fast", func(c *Config) { c.History.PollIntervalMs = 10 }, "history.poll_interval_ms"},
		{"bad paste mode", func(c *Config) { c.Paste.Mode = "telekinesis" }, "paste.mode"},
		{"typing speed zero", func(c *Config) { c.Paste.TypingSpeed = 0 }, "paste.typing_speed"},
		{"typing speed too fast", func(c *Config) { c.Paste.TypingSpeed = 5000 }, "paste.typing_speed"},
		{"chunk too small", func(c *Config) { c.Paste.ChunkSize = 5 }, "paste.chunk_size"},
		{"chunk too big", func(c *Config) { c.Paste.ChunkSize = 5000 }, "paste.chunk_size"},
		{"zero paste budget", func(c *Config) { c.RateLimit.PasteMax = 0 }, "rate_limit.paste_max"},
		{"empty db path", func(c *Config) { c.Storage.DatabasePath = "" }, "storage.database_path"},
		{"empty snippets path", func(c *Config) { c.Storage.SnippetsPath = "" }, "storage.snippets_path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"tap window too short", func(c *Config) { c.Hotkey.DoubleTapWindowMs = 10 }, "hotkey.double_tap_window_ms"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.History.Size = 0
	cfg.Paste.Mode = "no"
	cfg.Logging.Level = "chatty"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
}

func TestRetentionZeroDisables(t *testing.T) {
	cfg := Default()
	cfg.History.RetentionDays = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Duration(0), cfg.RetentionAge())
}

func TestDerivedDurations(t *testing.T) {
	cfg := Default()
	cfg.History.PollIntervalMs = 250
	cfg.Paste.TypingSpeed = 50

	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 20*time.Millisecond, cfg.TypingBaseInterval())
}

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	l := NewLoader(path, nil)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Default().History.Size, cfg.History.Size)

	// The defaults landed on disk.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll_interval_ms")
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	l := NewLoader(path, nil)
	_, err := l.Load()
	require.NoError(t, err)

	cfg := Default()
	cfg.History.Size = 250
	cfg.Paste.Mode = "typing"
	require.NoError(t, l.Save(cfg))

	reloaded, err := NewLoader(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, 250, reloaded.History.Size)
	assert.Equal(t, "typing", reloaded.Paste.Mode)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	l := NewLoader(path, nil)

	cfg := Default()
	cfg.History.Size = -1
	require.Error(t, l.Save(cfg))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "invalid config must not be written")
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[history]\nsize = 42\n"), 0600))

	cfg, err := NewLoader(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.History.Size)
	assert.Equal(t, Default().Paste.ChunkSize, cfg.Paste.ChunkSize)
	assert.Equal(t, Default().Logging.Level, cfg.Logging.Level)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("{{{{not toml"), 0600))

	_, err := NewLoader(path, nil).Load()
	require.Error(t, err)
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	l := NewLoader(path, nil)
	_, err := l.Load()
	require.NoError(t, err)

	var mu sync.Mutex
	var gotSize int
	reloaded := make(chan struct{}, 1)
	l.OnChange(func(c *Config) {
		mu.Lock()
		gotSize = c.History.Size
		mu.Unlock()
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	require.NoError(t, l.Watch())
	defer l.Stop()

	cfg := Default()
	cfg.History.Size = 777
	require.NoError(t, saveToFile(path, cfg))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 777, gotSize)
}

func TestDefaultPathEndsWithConfigToml(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultPath(), "config.toml"))
}
