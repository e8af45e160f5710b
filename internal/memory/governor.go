// Package memory samples process memory at pipeline checkpoints and forces
// the runtime to return memory to the OS when it grows too large.
package memory

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/maauso/video-compiler/internal/telemetry"
)

// DefaultThreshold is the resident size above which a checkpoint reclaims.
const DefaultThreshold uint64 = 2684354560 // 2.5 GiB

// Governor tracks resident memory across a job. It never blocks or fails
// the pipeline; sampling errors are logged and read as zero.
type Governor struct {
	sampler   Sampler
	threshold uint64
	reclaim   func()
	recorder  telemetry.Recorder
	logger    *slog.Logger

	mu       sync.Mutex
	peak     uint64
	trackers map[*tracker]struct{}
}

// Option configures a Governor.
type Option func(*Governor)

// WithSampler overrides the RSS source.
func WithSampler(s Sampler) Option {
	return func(g *Governor) {
		if s != nil {
			g.sampler = s
		}
	}
}

// WithThreshold sets the emergency reclaim threshold in bytes.
func WithThreshold(bytes uint64) Option {
	return func(g *Governor) {
		if bytes > 0 {
			g.threshold = bytes
		}
	}
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r telemetry.Recorder) Option {
	return func(g *Governor) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithReclaimFunc replaces the forced collection.
func WithReclaimFunc(f func()) Option {
	return func(g *Governor) {
		if f != nil {
			g.reclaim = f
		}
	}
}

// NewGovernor creates a Governor.
func NewGovernor(logger *slog.Logger, opts ...Option) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Governor{
		sampler:   DefaultSampler(),
		threshold: DefaultThreshold,
		reclaim:   reclaim,
		recorder:  telemetry.Nop{},
		logger:    logger,
		trackers:  make(map[*tracker]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func reclaim() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Threshold returns the configured emergency threshold.
func (g *Governor) Threshold() uint64 {
	return g.threshold
}

// Checkpoint samples memory at a named pipeline point, records it, and
// reclaims if the configured threshold is exceeded. It returns the resident
// size after any reclaim.
func (g *Governor) Checkpoint(label string) uint64 {
	rss := g.sample()
	g.recorder.Checkpoint(label, rss)
	g.logger.Debug("memory checkpoint",
		slog.String("checkpoint", label),
		slog.String("rss", humanize.IBytes(rss)),
	)
	if rss > g.threshold {
		g.logger.Warn("memory above threshold, reclaiming",
			slog.String("checkpoint", label),
			slog.String("rss", humanize.IBytes(rss)),
			slog.String("threshold", humanize.IBytes(g.threshold)),
		)
		g.ForceReclaim(label)
		return g.sample()
	}
	return rss
}

// ForceReclaim runs a full collection and returns the resident bytes freed.
// The result may be negative when other allocations raced the collection.
func (g *Governor) ForceReclaim(label string) int64 {
	before := g.sample()
	g.reclaim()
	after := g.sample()
	g.recorder.Reclaim(label, before, after)
	return int64(before) - int64(after)
}

// EmergencyReclaimIfOver reclaims only when resident memory exceeds
// threshold, and reports whether it did.
func (g *Governor) EmergencyReclaimIfOver(threshold uint64) bool {
	if g.sample() <= threshold {
		return false
	}
	freed := g.ForceReclaim("emergency")
	g.logger.Warn("emergency memory reclaim",
		slog.String("threshold", humanize.IBytes(threshold)),
		slog.Int64("freed_bytes", freed),
	)
	return true
}

// Peak returns the largest resident size observed since the governor was
// created.
func (g *Governor) Peak() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// PeakTracker reports the largest resident size sampled while it was active.
type PeakTracker interface {
	Peak() uint64
	Stop()
}

type tracker struct {
	g    *Governor
	peak uint64
}

// Track starts a peak tracker scoped to one job. Every sample taken by the
// governor while the tracker is active counts towards its peak, so jobs
// sharing a governor never reset each other's figures.
func (g *Governor) Track() PeakTracker {
	t := &tracker{g: g}
	g.mu.Lock()
	g.trackers[t] = struct{}{}
	g.mu.Unlock()
	return t
}

func (t *tracker) Peak() uint64 {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	return t.peak
}

// Stop detaches the tracker. Its peak stays readable.
func (t *tracker) Stop() {
	t.g.mu.Lock()
	delete(t.g.trackers, t)
	t.g.mu.Unlock()
}

func (g *Governor) sample() uint64 {
	rss, err := g.sampler.RSS()
	if err != nil {
		g.logger.Debug("memory sample failed", slog.String("error", err.Error()))
		return 0
	}
	g.mu.Lock()
	if rss > g.peak {
		g.peak = rss
	}
	for t := range g.trackers {
		if rss > t.peak {
			t.peak = rss
		}
	}
	g.mu.Unlock()
	return rss
}
