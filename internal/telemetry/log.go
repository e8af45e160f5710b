package telemetry

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

// LogRecorder writes events to a structured logger.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a LogRecorder. A nil logger uses slog.Default().
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With(slog.String("component", "telemetry"))}
}

func (l *LogRecorder) Checkpoint(label string, rss uint64) {
	l.logger.Info("memory checkpoint",
		slog.String("checkpoint", label),
		slog.Uint64("rss_bytes", rss),
		slog.String("rss", humanize.IBytes(rss)),
	)
}

func (l *LogRecorder) Reclaim(label string, before, after uint64) {
	var freed uint64
	if before > after {
		freed = before - after
	}
	l.logger.Info("memory reclaimed",
		slog.String("checkpoint", label),
		slog.Uint64("before_bytes", before),
		slog.Uint64("after_bytes", after),
		slog.String("freed", humanize.IBytes(freed)),
	)
}

func (l *LogRecorder) Attempt(e AttemptEvent) {
	attrs := []any{
		slog.String("job_id", e.JobID),
		slog.String("tier", e.Tier),
		slog.Int("attempt", e.Attempt),
		slog.String("result", result(e.Success)),
		slog.Int("exit_code", e.ExitCode),
		slog.Duration("elapsed", e.Elapsed),
		slog.Int64("output_bytes", e.OutputBytes),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
		l.logger.Warn("encode attempt", attrs...)
		return
	}
	l.logger.Info("encode attempt", attrs...)
}

func (l *LogRecorder) Job(e JobEvent) {
	attrs := []any{
		slog.String("job_id", e.JobID),
		slog.Int("clips", e.Clips),
		slog.Int("normalized_clips", e.Normalized),
		slog.String("tier", e.Tier),
		slog.Int("attempts", e.Attempts),
		slog.String("result", result(e.Success)),
		slog.Duration("elapsed", e.Elapsed),
		slog.Int64("output_bytes", e.OutputBytes),
		slog.String("peak_memory", humanize.IBytes(e.PeakMemory)),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
		l.logger.Error("compile job finished", attrs...)
		return
	}
	l.logger.Info("compile job finished", attrs...)
}
