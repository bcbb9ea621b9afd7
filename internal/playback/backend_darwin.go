//go:build darwin

package playback

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// osaBackend drives System Events through osascript. Requires the
// accessibility permission for the hosting process.
type osaBackend struct{}

// NewSystemBackend returns the platform keystroke backend.
func NewSystemBackend() Backend {
	return osaBackend{}
}

// TypeText emits the text as one keystroke call. System Events has no
// per-character delay, so the interval paces at the caller's chunk
// boundaries instead.
func (osaBackend) TypeText(text string, _ time.Duration) error {
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escapeAppleScript(text))
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		return fmt.Errorf("osascript keystroke: %w", err)
	}
	return nil
}

func (osaBackend) KeyCombo(modifier, key string) error {
	var down string
	switch modifier {
	case "cmd":
		down = "command down"
	case "ctrl":
		down = "control down"
	case "alt":
		down = "option down"
	case "shift":
		down = "shift down"
	default:
		return fmt.Errorf("unknown modifier %q", modifier)
	}
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, escapeAppleScript(key), down)
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		return fmt.Errorf("osascript key combo: %w", err)
	}
	return nil
}

func (osaBackend) KeyPress(key string) error {
	code, ok := darwinKeyCodes[key]
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	script := fmt.Sprintf(`tell application "System Events" to key code %d`, code)
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		return fmt.Errorf("osascript key code: %w", err)
	}
	return nil
}

// PointerPosition is not readable through System Events, so the
// emergency-stop heuristic is unavailable on this backend.
func (osaBackend) PointerPosition() (int, int, error) {
	return 0, 0, ErrNoBackend
}

var darwinKeyCodes = map[string]int{
	"enter": 36,
	"tab":   48,
	"esc":   53,
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
