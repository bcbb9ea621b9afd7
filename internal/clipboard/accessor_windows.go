//go:build windows

package clipboard

import (
	"bytes"
	"os/exec"
	"strings"
)

// windowsAccessor implements Accessor on Windows via PowerShell's
// clipboard cmdlets.
type windowsAccessor struct{}

// NewSystemAccessor returns the platform clipboard accessor.
func NewSystemAccessor() Accessor {
	return &windowsAccessor{}
}

func (a *windowsAccessor) ReadText() (string, error) {
	out, err := exec.Command("powershell", "-NoProfile", "-Command", "Get-Clipboard -Raw").Output()
	if err != nil {
		return "", err
	}
	// PowerShell appends a CRLF of its own.
	return strings.TrimSuffix(string(out), "\r\n"), nil
}

func (a *windowsAccessor) WriteText(text string) error {
	cmd := exec.Command("powershell", "-NoProfile", "-Command", "$input | Set-Clipboard")
	cmd.Stdin = bytes.NewBufferString(text)
	return cmd.Run()
}
