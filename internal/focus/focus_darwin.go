//go:build darwin

package focus

import (
	"log/slog"
	"os/exec"
	"strings"
)

// frontmostScript asks System Events for the frontmost process and its
// front window title. The script degrades to just the process name when
// the process has no windows.
const frontmostScript = `
tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	try
		set winTitle to name of front window of frontApp
		return appName & " - " & winTitle
	on error
		return appName
	end try
end tell`

type darwinTitler struct {
	logger *slog.Logger
}

func newPlatformTitler(logger *slog.Logger) Titler {
	return &darwinTitler{logger: logger.With("component", "focus_darwin")}
}

func (t *darwinTitler) ActiveWindowTitle() string {
	out, err := exec.Command("osascript", "-e", frontmostScript).Output()
	if err != nil {
		t.logger.Debug("osascript focus query failed", "error", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}
