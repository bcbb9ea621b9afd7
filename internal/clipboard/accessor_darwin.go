//go:build darwin

package clipboard

import (
	"bytes"
	"os/exec"
)

// darwinAccessor implements Accessor on macOS using pbpaste/pbcopy.
type darwinAccessor struct{}

// NewSystemAccessor returns the platform clipboard accessor.
func NewSystemAccessor() Accessor {
	return &darwinAccessor{}
}

func (a *darwinAccessor) ReadText() (string, error) {
	out, err := exec.Command("pbpaste").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (a *darwinAccessor) WriteText(text string) error {
	cmd := exec.Command("pbcopy")
	cmd.Stdin = bytes.NewBufferString(text)
	return cmd.Run()
}
