//go:build linux

package focus

import (
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/godbus/dbus/v5"
)

// linuxTitler reads the focused window title from X11 tools, falling
// back to the GNOME Shell introspection interface on Wayland.
type linuxTitler struct {
	logger      *slog.Logger
	displayType string
}

func newPlatformTitler(logger *slog.Logger) Titler {
	return &linuxTitler{
		logger:      logger.With("component", "focus_linux"),
		displayType: detectDisplay(),
	}
}

// detectDisplay determines the display server type. XWayland counts as
// X11 because the X tools still work there.
func detectDisplay() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if os.Getenv("DISPLAY") != "" {
			return "x11"
		}
		return "wayland"
	}
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	return "unknown"
}

func (t *linuxTitler) ActiveWindowTitle() string {
	switch t.displayType {
	case "x11":
		if title := titleFromXdotool(); title != "" {
			return title
		}
		return titleFromXprop()
	case "wayland":
		title, err := titleFromGnomeShell()
		if err != nil {
			t.logger.Debug("wayland focus query failed", "error", err)
			return ""
		}
		return title
	default:
		return ""
	}
}

func titleFromXdotool() string {
	out, err := exec.Command("xdotool", "getactivewindow", "getwindowname").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func titleFromXprop() string {
	out, err := exec.Command("xprop", "-root", "_NET_ACTIVE_WINDOW").Output()
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(out))
	if len(fields) < 5 {
		return ""
	}
	windowID := fields[len(fields)-1]

	out, err = exec.Command("xprop", "-id", windowID, "WM_NAME").Output()
	if err != nil {
		return ""
	}
	return parseWMName(string(out))
}

// titleFromGnomeShell queries org.gnome.Shell.Introspect for the window
// list and returns the title of the window holding focus.
func titleFromGnomeShell() (string, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return "", err
	}

	obj := conn.Object("org.gnome.Shell.Introspect", "/org/gnome/Shell/Introspect")
	var windows map[uint64]map[string]dbus.Variant
	if err := obj.Call("org.gnome.Shell.Introspect.GetWindows", 0).Store(&windows); err != nil {
		return "", err
	}

	for _, props := range windows {
		focused, ok := props["has-focus"]
		if !ok {
			continue
		}
		if hasFocus, ok := focused.Value().(bool); !ok || !hasFocus {
			continue
		}
		if v, ok := props["title"]; ok {
			if title, ok := v.Value().(string); ok {
				return title, nil
			}
		}
	}
	return "", nil
}
