//go:build linux

package clipboard

import (
	"bytes"
	"os/exec"
)

// linuxAccessor implements Accessor on Linux. It tries xclip, then
// xsel, then the Wayland tools, using whichever responds first.
type linuxAccessor struct{}

// NewSystemAccessor returns the platform clipboard accessor.
func NewSystemAccessor() Accessor {
	return &linuxAccessor{}
}

func (a *linuxAccessor) ReadText() (string, error) {
	out, err := exec.Command("xclip", "-selection", "clipboard", "-o").Output()
	if err == nil {
		return string(out), nil
	}

	out, err = exec.Command("xsel", "--clipboard", "--output").Output()
	if err == nil {
		return string(out), nil
	}

	out, err = exec.Command("wl-paste", "--no-newline").Output()
	if err == nil {
		return string(out), nil
	}

	return "", err
}

func (a *linuxAccessor) WriteText(text string) error {
	for _, args := range [][]string{
		{"xclip", "-selection", "clipboard", "-i"},
		{"xsel", "--clipboard", "--input"},
		{"wl-copy"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Stdin = bytes.NewBufferString(text)
		if err := cmd.Run(); err == nil {
			return nil
		}
	}
	return ErrUnavailable
}
