//go:build !linux && !darwin && !windows

package playback

// NewSystemBackend returns the platform keystroke backend.
func NewSystemBackend() Backend {
	return NoopBackend{}
}
