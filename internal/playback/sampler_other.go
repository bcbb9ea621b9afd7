//go:build !linux

package playback

// idleSampler reports zero utilization, pinning the pacer at its base
// interval on platforms without a cheap sampling source.
type idleSampler struct{}

func newSystemSampler() ResourceSampler {
	return idleSampler{}
}

func (idleSampler) CPUPercent() float64    { return 0 }
func (idleSampler) MemoryPercent() float64 { return 0 }
