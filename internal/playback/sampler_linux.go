//go:build linux

package playback

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// procSampler reads utilization from /proc. CPU usage is computed as a
// delta between consecutive samples; the first sample reports zero.
type procSampler struct {
	mu        sync.Mutex
	prevIdle  uint64
	prevTotal uint64
}

func newSystemSampler() ResourceSampler {
	return &procSampler{}
}

func (s *procSampler) CPUPercent() float64 {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0
	}
	idle, total, ok := parseProcStat(string(data))
	if !ok {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dIdle := idle - s.prevIdle
	dTotal := total - s.prevTotal
	first := s.prevTotal == 0
	s.prevIdle, s.prevTotal = idle, total

	if first || dTotal == 0 {
		return 0
	}
	return 100 * float64(dTotal-dIdle) / float64(dTotal)
}

func (s *procSampler) MemoryPercent() float64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	total, avail, ok := parseMeminfo(string(data))
	if !ok || total == 0 {
		return 0
	}
	return 100 * float64(total-avail) / float64(total)
}

// parseProcStat reads the aggregate cpu line. Idle includes iowait.
func parseProcStat(data string) (idle, total uint64, ok bool) {
	line, _, _ := strings.Cut(data, "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, false
	}
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		total += v
		// fields: user nice system idle iowait ...
		if i == 3 || i == 4 {
			idle += v
		}
	}
	return idle, total, true
}

func parseMeminfo(data string) (total, avail uint64, ok bool) {
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			avail = v
		}
	}
	return total, avail, total != 0 && avail != 0
}
