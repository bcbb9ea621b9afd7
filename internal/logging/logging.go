// Package logging provides structured slog logging for pastad with
// sensitive-value redaction. Clipboard content routinely contains
// credentials, so redaction happens in the handler rather than trusting
// every call site.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pastad/internal/config"
	"pastad/internal/sensitive"
)

// Setup builds a logger from the logging config. String attribute
// values are run through the detector and redacted when they match a
// sensitivity pattern; attribute keys that name credentials are always
// redacted.
func Setup(cfg config.LoggingConfig, detector *sensitive.Detector) (*slog.Logger, error) {
	w, err := output(cfg)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			return redactAttr(a, detector)
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), nil
}

// SetDefault installs the logger as the process default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

func output(cfg config.LoggingConfig) (io.Writer, error) {
	if cfg.File == "" {
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactAttr(a slog.Attr, detector *sensitive.Detector) slog.Attr {
	if redactedKey(a.Key) {
		a.Value = slog.StringValue(sensitive.DefaultMarker)
		return a
	}
	if detector != nil && a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		if detector.IsSensitive(v) {
			a.Value = slog.StringValue(detector.Redact(v, ""))
		}
	}
	return a
}

// redactedKey reports whether an attribute key names credential
// material regardless of its value.
func redactedKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, s := range []string{
		"password", "secret", "token", "credential",
		"api_key", "apikey", "bearer", "private",
	} {
		if strings.Contains(keyLower, s) {
			return true
		}
	}
	return false
}
