// Package telemetry records memory checkpoints, encode attempts and job
// outcomes as structured events.
package telemetry

import (
	"context"
	"time"
)

// Attempt results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// AttemptEvent describes one transcoder run.
type AttemptEvent struct {
	JobID       string
	Tier        string
	Attempt     int
	Success     bool
	ExitCode    int
	Elapsed     time.Duration
	OutputBytes int64
	Err         error
}

// JobEvent describes the end of a compile job.
type JobEvent struct {
	JobID       string
	Clips       int
	Normalized  int
	Tier        string
	Attempts    int
	Success     bool
	Elapsed     time.Duration
	OutputBytes int64
	PeakMemory  uint64
	Err         error
}

// Recorder receives telemetry events. Implementations must be safe for
// concurrent use and must not block.
type Recorder interface {
	Checkpoint(label string, rssBytes uint64)
	Reclaim(label string, beforeBytes, afterBytes uint64)
	Attempt(AttemptEvent)
	Job(JobEvent)
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// Nop discards every event.
type Nop struct{}

func (Nop) Checkpoint(string, uint64)      {}
func (Nop) Reclaim(string, uint64, uint64) {}
func (Nop) Attempt(AttemptEvent)           {}
func (Nop) Job(JobEvent)                   {}

// Multi fans events out to several recorders.
type Multi []Recorder

// NewMulti returns a recorder dispatching to every non-nil recorder.
func NewMulti(recorders ...Recorder) Multi {
	out := make(Multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m Multi) Checkpoint(label string, rss uint64) {
	for _, r := range m {
		r.Checkpoint(label, rss)
	}
}

func (m Multi) Reclaim(label string, before, after uint64) {
	for _, r := range m {
		r.Reclaim(label, before, after)
	}
}

func (m Multi) Attempt(e AttemptEvent) {
	for _, r := range m {
		r.Attempt(e)
	}
}

func (m Multi) Job(e JobEvent) {
	for _, r := range m {
		r.Job(e)
	}
}

type jobIDKey struct{}

// ContextWithJobID attaches a job id that recorders and loggers downstream
// can read back with JobIDFromContext.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFromContext returns the job id attached to ctx, or "".
func JobIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(jobIDKey{}).(string)
	return v
}
