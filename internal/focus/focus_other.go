//go:build !linux && !darwin && !windows

package focus

import "log/slog"

func newPlatformTitler(logger *slog.Logger) Titler {
	logger.Warn("no focus backend for this platform")
	return Static("")
}
