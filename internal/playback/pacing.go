package playback

import (
	"sync"
	"time"
)

// ResourceSampler reports system utilization as 0..100 percentages.
type ResourceSampler interface {
	CPUPercent() float64
	MemoryPercent() float64
}

const (
	// DefaultBaseInterval is the per-chunk pause on an idle system.
	DefaultBaseInterval = 10 * time.Millisecond

	// DefaultMaxInterval is the pause under full load.
	DefaultMaxInterval = 60 * time.Millisecond

	// pacerTTL bounds how often utilization is re-sampled. Sampling is
	// comparatively expensive and typing bursts arrive far faster.
	pacerTTL = 2 * time.Second
)

// Pacer computes the typing interval from current CPU and memory load.
// The interval is cached and recomputed at most once per TTL.
type Pacer struct {
	sampler ResourceSampler
	base    time.Duration
	max     time.Duration
	now     func() time.Time

	mu         sync.Mutex
	cached     time.Duration
	computedAt time.Time
}

// NewPacer returns a pacer over the given sampler. A nil sampler uses
// the system sampler; non-positive bounds use the defaults.
func NewPacer(sampler ResourceSampler, base, max time.Duration) *Pacer {
	if sampler == nil {
		sampler = newSystemSampler()
	}
	if base <= 0 {
		base = DefaultBaseInterval
	}
	if max <= 0 {
		max = DefaultMaxInterval
	}
	if max < base {
		max = base
	}
	return &Pacer{
		sampler: sampler,
		base:    base,
		max:     max,
		now:     time.Now,
	}
}

// Interval returns the current typing interval. CPU load dominates the
// blend because keystroke delivery is CPU-bound in the receiving app.
func (p *Pacer) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.computedAt.IsZero() && p.now().Sub(p.computedAt) < pacerTTL {
		return p.cached
	}

	cpu := clampFraction(p.sampler.CPUPercent() / 100)
	mem := clampFraction(p.sampler.MemoryPercent() / 100)
	load := 0.7*cpu + 0.3*mem

	interval := p.base + time.Duration(float64(p.max-p.base)*load)
	if interval > p.max {
		interval = p.max
	}
	if interval < p.base {
		interval = p.base
	}

	p.cached = interval
	p.computedAt = p.now()
	return interval
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
