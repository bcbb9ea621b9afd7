//go:build !darwin && !linux && !windows

package clipboard

// NewSystemAccessor returns the no-op accessor on unsupported platforms.
func NewSystemAccessor() Accessor {
	return NoopAccessor{}
}
