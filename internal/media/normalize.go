package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// MinNormalizedBytes is the smallest output accepted as a real re-encode.
const MinNormalizedBytes = 1000

// Checkpointer is notified after every clip so memory can be sampled and
// reclaimed before the next encode starts.
type Checkpointer interface {
	Checkpoint(label string) uint64
	Threshold() uint64
	EmergencyReclaimIfOver(threshold uint64) bool
}

type nopCheckpointer struct{}

func (nopCheckpointer) Checkpoint(string) uint64           { return 0 }
func (nopCheckpointer) Threshold() uint64                  { return 0 }
func (nopCheckpointer) EmergencyReclaimIfOver(uint64) bool { return false }

// Normalizer re-encodes clips to a common resolution, one clip at a time.
type Normalizer struct {
	runner     Runner
	ffmpegPath string
	timeout    time.Duration
	governor   Checkpointer
	logger     *slog.Logger
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClipTimeout overrides the per-clip encode timeout.
func WithClipTimeout(d time.Duration) NormalizerOption {
	return func(n *Normalizer) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithCheckpointer sets the hook invoked after every clip.
func WithCheckpointer(c Checkpointer) NormalizerOption {
	return func(n *Normalizer) {
		if c != nil {
			n.governor = c
		}
	}
}

// NewNormalizer creates a Normalizer. If ffmpegPath is empty it defaults to
// "ffmpeg" (found via PATH).
func NewNormalizer(runner Runner, ffmpegPath string, logger *slog.Logger, opts ...NormalizerOption) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{
		runner:     runner,
		ffmpegPath: ffmpegPath,
		timeout:    120 * time.Second,
		governor:   nopCheckpointer{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NormalizeResult reports the per-clip outcome of Normalize.
type NormalizeResult struct {
	Paths      []string
	Normalized int
}

// Normalize letterboxes every clip to target and returns the paths to use in
// sequence order. On success the original file is deleted and replaced by the
// normalized one; on any failure the original path is kept untouched.
func (n *Normalizer) Normalize(ctx context.Context, clips []string, target AspectTarget) NormalizeResult {
	out := NormalizeResult{Paths: make([]string, len(clips))}
	filter := target.LetterboxFilter()
	w, h := target.Resolution()

	for i, src := range clips {
		dst := filepath.Join(filepath.Dir(src), fmt.Sprintf("normalized_%03d.mp4", i))
		if err := n.normalizeOne(ctx, src, dst, filter); err != nil {
			n.logger.Warn("normalization failed, keeping original clip",
				slog.Int("clip", i),
				slog.String("path", src),
				slog.String("error", err.Error()),
			)
			_ = os.Remove(dst)
			out.Paths[i] = src
		} else {
			if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
				n.logger.Warn("failed to remove original clip",
					slog.String("path", src),
					slog.String("error", err.Error()),
				)
			}
			out.Paths[i] = dst
			out.Normalized++
			n.logger.Info("clip normalized",
				slog.Int("clip", i),
				slog.Int("width", w),
				slog.Int("height", h),
			)
		}
		n.governor.Checkpoint(fmt.Sprintf("normalize_clip_%d", i))
		if n.governor.EmergencyReclaimIfOver(n.governor.Threshold()) {
			n.logger.Warn("memory reclaimed after clip", slog.Int("clip", i))
		}
	}
	return out
}

func (n *Normalizer) normalizeOne(ctx context.Context, src, dst, filter string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", src,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "23",
		"-maxrate", "4M",
		"-bufsize", "2M",
		"-threads", "2",
		"-pix_fmt", "yuv420p",
		"-an",
		"-movflags", "+faststart",
		dst,
	}
	if _, err := n.runner.Run(ctx, n.ffmpegPath, args); err != nil {
		return err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("normalized output missing: %w", err)
	}
	if info.Size() < MinNormalizedBytes {
		return fmt.Errorf("normalized output too small: %s", humanize.IBytes(uint64(info.Size())))
	}
	return nil
}
