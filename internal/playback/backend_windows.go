//go:build windows

package playback

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// sendKeysBackend drives SendKeys through PowerShell.
type sendKeysBackend struct{}

// NewSystemBackend returns the platform keystroke backend.
func NewSystemBackend() Backend {
	return sendKeysBackend{}
}

func (sendKeysBackend) TypeText(text string, _ time.Duration) error {
	return sendKeys(escapeSendKeys(text))
}

func (sendKeysBackend) KeyCombo(modifier, key string) error {
	var prefix string
	switch modifier {
	case "ctrl", "cmd":
		prefix = "^"
	case "alt":
		prefix = "%"
	case "shift":
		prefix = "+"
	default:
		return fmt.Errorf("unknown modifier %q", modifier)
	}
	return sendKeys(prefix + key)
}

func (sendKeysBackend) KeyPress(key string) error {
	name, ok := sendKeyNames[key]
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	return sendKeys(name)
}

func (sendKeysBackend) PointerPosition() (int, int, error) {
	const script = `Add-Type -AssemblyName System.Windows.Forms; $p = [System.Windows.Forms.Cursor]::Position; Write-Output "$($p.X) $($p.Y)"`
	out, err := exec.Command("powershell", "-NoProfile", "-Command", script).Output()
	if err != nil {
		return 0, 0, fmt.Errorf("read cursor position: %w", err)
	}
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected cursor output %q", string(out))
	}
	x, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse pointer x: %w", err)
	}
	y, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse pointer y: %w", err)
	}
	return x, y, nil
}

var sendKeyNames = map[string]string{
	"enter": "{ENTER}",
	"tab":   "{TAB}",
	"esc":   "{ESC}",
}

func sendKeys(keys string) error {
	script := fmt.Sprintf(
		`Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait('%s')`,
		strings.ReplaceAll(keys, "'", "''"),
	)
	if err := exec.Command("powershell", "-NoProfile", "-Command", script).Run(); err != nil {
		return fmt.Errorf("sendkeys: %w", err)
	}
	return nil
}

// escapeSendKeys wraps the characters SendKeys treats as operators.
func escapeSendKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}', '[', ']':
			b.WriteRune('{')
			b.WriteRune(r)
			b.WriteRune('}')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
