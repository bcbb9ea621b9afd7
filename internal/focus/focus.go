// Package focus reports which window currently has input focus. The
// privacy guard matches the reported title against its application
// exclusion list, so an empty title simply means no match.
package focus

import (
	"log/slog"
	"strings"
)

// Titler names the focused window. Implementations must be safe for
// concurrent use and return "" when the answer is unknown.
type Titler interface {
	ActiveWindowTitle() string
}

// Static is a fixed-title Titler for tests and headless setups.
type Static string

func (s Static) ActiveWindowTitle() string { return string(s) }

// NewSystemTitler returns the platform focus reader. On platforms
// without a backend it reports an empty title.
func NewSystemTitler(logger *slog.Logger) Titler {
	if logger == nil {
		logger = slog.Default()
	}
	return newPlatformTitler(logger)
}

// parseWMName extracts the title from an xprop WM_NAME line, for
// example: WM_NAME(UTF8_STRING) = "doc - editor".
func parseWMName(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "WM_NAME") {
			continue
		}
		idx := strings.Index(line, `= "`)
		if idx == -1 {
			continue
		}
		end := strings.LastIndex(line, `"`)
		if end <= idx+3 {
			continue
		}
		return line[idx+3 : end]
	}
	return ""
}
