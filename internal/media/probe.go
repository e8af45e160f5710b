package media

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultClipDuration is used whenever a duration cannot be measured.
const DefaultClipDuration = 5.0

// Prober measures media durations with ffprobe.
type Prober struct {
	runner      Runner
	ffprobePath string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewProber creates a Prober. If ffprobePath is empty it defaults to
// "ffprobe" (found via PATH); a non-positive timeout defaults to 30s.
func NewProber(runner Runner, ffprobePath string, timeout time.Duration, logger *slog.Logger) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{runner: runner, ffprobePath: ffprobePath, timeout: timeout, logger: logger}
}

// Probe returns the playable duration of path in seconds. Duration only
// drives fade and transition timing, so any failure yields
// DefaultClipDuration instead of an error.
func (p *Prober) Probe(ctx context.Context, path string) float64 {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.runner.Run(ctx, p.ffprobePath, []string{
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	})
	if err != nil {
		p.logger.Warn("could not probe duration, using default",
			slog.String("path", path),
			slog.Float64("default_sec", DefaultClipDuration),
			slog.String("error", err.Error()),
		)
		return DefaultClipDuration
	}

	d, ok := parseDuration(res.Stdout)
	if !ok {
		p.logger.Warn("unparseable duration, using default",
			slog.String("path", path),
			slog.String("output", strings.TrimSpace(res.Stdout)),
		)
		return DefaultClipDuration
	}

	p.logger.Debug("probed duration",
		slog.String("path", path),
		slog.Float64("duration_sec", d),
	)
	return d
}

func parseDuration(out string) (float64, bool) {
	s := strings.TrimSpace(out)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0, false
	}
	return d, true
}
