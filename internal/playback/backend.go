// Package playback replays text into the focused application, either
// through a clipboard paste keystroke or as simulated typing with
// adaptive pacing and cooperative abort.
package playback

import (
	"errors"
	"runtime"
	"time"
)

// ErrNoBackend is returned by backends on platforms without keystroke
// simulation support.
var ErrNoBackend = errors.New("playback: no keystroke backend")

// Backend is the keystroke-simulation primitive. PointerPosition feeds
// the emergency-stop heuristic; backends that cannot read the pointer
// return an error and the heuristic is skipped.
type Backend interface {
	TypeText(text string, interval time.Duration) error
	KeyCombo(modifier, key string) error
	KeyPress(key string) error
	PointerPosition() (x, y int, err error)
}

// NoopBackend fails every operation. It is the fallback on platforms
// without a real backend.
type NoopBackend struct{}

func (NoopBackend) TypeText(string, time.Duration) error { return ErrNoBackend }
func (NoopBackend) KeyCombo(string, string) error        { return ErrNoBackend }
func (NoopBackend) KeyPress(string) error                { return ErrNoBackend }
func (NoopBackend) PointerPosition() (int, int, error)   { return 0, 0, ErrNoBackend }

// pasteModifier is the platform paste chord modifier.
func pasteModifier() string {
	if runtime.GOOS == "darwin" {
		return "cmd"
	}
	return "ctrl"
}
