//go:build linux

package playback

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// xdoBackend drives xdotool. Works on X11 and XWayland.
type xdoBackend struct{}

// NewSystemBackend returns the platform keystroke backend, or a
// NoopBackend when no simulation tool is installed.
func NewSystemBackend() Backend {
	if _, err := exec.LookPath("xdotool"); err == nil {
		return xdoBackend{}
	}
	return NoopBackend{}
}

func (xdoBackend) TypeText(text string, interval time.Duration) error {
	delay := strconv.Itoa(int(interval.Milliseconds()))
	cmd := exec.Command("xdotool", "type", "--delay", delay, "--", text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xdotool type: %w", err)
	}
	return nil
}

func (xdoBackend) KeyCombo(modifier, key string) error {
	chord := xdoModifier(modifier) + "+" + key
	if err := exec.Command("xdotool", "key", "--clearmodifiers", chord).Run(); err != nil {
		return fmt.Errorf("xdotool key %s: %w", chord, err)
	}
	return nil
}

func (xdoBackend) KeyPress(key string) error {
	name := xdoKey(key)
	if err := exec.Command("xdotool", "key", name).Run(); err != nil {
		return fmt.Errorf("xdotool key %s: %w", name, err)
	}
	return nil
}

func (xdoBackend) PointerPosition() (int, int, error) {
	out, err := exec.Command("xdotool", "getmouselocation", "--shell").Output()
	if err != nil {
		return 0, 0, fmt.Errorf("xdotool getmouselocation: %w", err)
	}
	return parseMouseLocation(string(out))
}

// parseMouseLocation reads the X= and Y= lines from
// "xdotool getmouselocation --shell" output.
func parseMouseLocation(out string) (int, int, error) {
	x, y := -1, -1
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "X="); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return 0, 0, fmt.Errorf("parse pointer x: %w", err)
			}
			x = n
		} else if v, ok := strings.CutPrefix(line, "Y="); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return 0, 0, fmt.Errorf("parse pointer y: %w", err)
			}
			y = n
		}
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("pointer position missing in output")
	}
	return x, y, nil
}

func xdoModifier(modifier string) string {
	switch modifier {
	case "cmd":
		return "super"
	default:
		return modifier
	}
}

func xdoKey(key string) string {
	switch key {
	case "enter":
		return "Return"
	case "esc":
		return "Escape"
	case "tab":
		return "Tab"
	default:
		return key
	}
}
