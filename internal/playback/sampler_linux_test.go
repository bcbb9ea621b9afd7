//go:build linux

package playback

import "testing"

func TestParseProcStat(t *testing.T) {
	data := "cpu  100 0 50 800 50 0 0 0 0 0\ncpu0 50 0 25 400 25 0 0 0 0 0\n"
	idle, total, ok := parseProcStat(data)
	if !ok {
		t.Fatal("parse failed")
	}
	if idle != 850 {
		t.Errorf("idle = %d, want 850 (idle+iowait)", idle)
	}
	if total != 1000 {
		t.Errorf("total = %d, want 1000", total)
	}

	if _, _, ok := parseProcStat("intr 12345"); ok {
		t.Error("non-cpu line should not parse")
	}
	if _, _, ok := parseProcStat(""); ok {
		t.Error("empty input should not parse")
	}
}

func TestParseMeminfo(t *testing.T) {
	data := "MemTotal:       16384000 kB\nMemFree:         1024000 kB\nMemAvailable:    8192000 kB\n"
	total, avail, ok := parseMeminfo(data)
	if !ok {
		t.Fatal("parse failed")
	}
	if total != 16384000 || avail != 8192000 {
		t.Errorf("total=%d avail=%d", total, avail)
	}

	if _, _, ok := parseMeminfo("garbage"); ok {
		t.Error("garbage should not parse")
	}
}

func TestProcSamplerFirstCPUSampleIsZero(t *testing.T) {
	s := &procSampler{}
	if got := s.CPUPercent(); got != 0 {
		t.Errorf("first sample = %v, want 0 (no delta yet)", got)
	}
}

func TestParseMouseLocation(t *testing.T) {
	out := "X=612\nY=388\nSCREEN=0\nWINDOW=1234\n"
	x, y, err := parseMouseLocation(out)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if x != 612 || y != 388 {
		t.Errorf("position = (%d, %d)", x, y)
	}

	// Origin is a legitimate position; the engine decides what it means.
	x, y, err = parseMouseLocation("X=0\nY=0\n")
	if err != nil || x != 0 || y != 0 {
		t.Errorf("origin parse: (%d, %d) err=%v", x, y, err)
	}

	if _, _, err := parseMouseLocation("SCREEN=0\n"); err == nil {
		t.Error("missing coordinates should error")
	}
}
