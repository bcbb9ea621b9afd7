package clipboard

import "errors"

// ErrUnavailable is returned when no clipboard mechanism works on this
// system.
var ErrUnavailable = errors.New("clipboard: unavailable")

// Accessor is the platform clipboard read/write primitive. The real
// implementation shells out to the platform tool; tests substitute a
// fake.
type Accessor interface {
	// ReadText returns the current text clipboard content.
	ReadText() (string, error)

	// WriteText replaces the clipboard content.
	WriteText(text string) error
}

// NoopAccessor is the fallback accessor for platforms without clipboard
// support. Reads return ErrUnavailable; writes are dropped.
type NoopAccessor struct{}

func (NoopAccessor) ReadText() (string, error) { return "", ErrUnavailable }
func (NoopAccessor) WriteText(string) error    { return ErrUnavailable }
