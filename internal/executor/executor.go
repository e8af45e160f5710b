// Package executor runs compile plans through the transcoder and falls back
// to a simpler plan when the primary attempt fails.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/maauso/video-compiler/internal/media"
	"github.com/maauso/video-compiler/internal/plan"
	"github.com/maauso/video-compiler/internal/telemetry"
)

// Static errors for execution.
var (
	// ErrExecutionFailed is returned when no attempt produced a usable output.
	ErrExecutionFailed = errors.New("executor: execution failed")
	// ErrOutputMissing is returned when the transcoder exited cleanly but wrote nothing.
	ErrOutputMissing = errors.New("executor: output file missing")
	// ErrEmptyOutput is returned when the output file has zero bytes.
	ErrEmptyOutput = errors.New("executor: output file is empty")
	// ErrInvalidPlan is returned when a plan fails graph validation.
	ErrInvalidPlan = errors.New("executor: invalid plan")
	// ErrNoPlan is returned when the fallback builder yields nothing.
	ErrNoPlan = errors.New("executor: no plan")
)

// MemoryMonitor is sampled after every attempt.
type MemoryMonitor interface {
	Checkpoint(label string) uint64
	Peak() uint64
}

type nopMonitor struct{}

func (nopMonitor) Checkpoint(string) uint64 { return 0 }
func (nopMonitor) Peak() uint64              { return 0 }

// Result describes the outcome of an execution.
type Result struct {
	// OutputPath is the file the transcoder wrote.
	OutputPath string
	// Size is the output size in bytes.
	Size int64
	// WallClock is the total time spent across attempts.
	WallClock time.Duration
	// PeakMemory is the largest resident size observed by the monitor.
	PeakMemory uint64
	// Tier is the tier of the last attempt.
	Tier plan.Tier
	// Attempts is the number of transcoder runs.
	Attempts int
	// State is the terminal state.
	State State
	// History lists every state the execution passed through.
	History []State
}

// Executor runs plans with per-tier timeouts.
type Executor struct {
	runner     media.Runner
	ffmpegPath string
	timeouts   map[plan.Tier]time.Duration
	monitor    MemoryMonitor
	recorder   telemetry.Recorder
	logger     *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout overrides the encode timeout of one tier.
func WithTimeout(tier plan.Tier, d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeouts[tier] = d
		}
	}
}

// WithMemoryMonitor sets the memory monitor sampled after each attempt.
func WithMemoryMonitor(m MemoryMonitor) Option {
	return func(e *Executor) {
		if m != nil {
			e.monitor = m
		}
	}
}

// WithRecorder sets the telemetry sink for attempt events.
func WithRecorder(r telemetry.Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// New creates an Executor. If ffmpegPath is empty it defaults to "ffmpeg".
func New(runner media.Runner, ffmpegPath string, logger *slog.Logger, opts ...Option) *Executor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		runner:     runner,
		ffmpegPath: ffmpegPath,
		timeouts: map[plan.Tier]time.Duration{
			plan.TierFull:     plan.TierFull.DefaultTimeout(),
			plan.TierBasic:    plan.TierBasic.DefaultTimeout(),
			plan.TierFallback: plan.TierFallback.DefaultTimeout(),
		},
		monitor:  nopMonitor{},
		recorder: telemetry.Nop{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs p once, without a fallback.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, output string) (*Result, error) {
	return e.ExecuteWithFallback(ctx, p, nil, output)
}

// ExecuteWithFallback runs primary and, only if it fails, builds the
// fallback plan by calling fallback exactly once and runs that. A nil
// fallback makes this a single-attempt execution.
func (e *Executor) ExecuteWithFallback(ctx context.Context, primary *plan.Plan, fallback func() *plan.Plan, output string) (*Result, error) {
	start := time.Now()
	m := newMachine()
	res := &Result{OutputPath: output}
	finish := func(err error) (*Result, error) {
		res.WallClock = time.Since(start)
		res.PeakMemory = e.monitor.Peak()
		res.State = m.state
		res.History = append([]State(nil), m.history...)
		return res, err
	}

	if primary == nil {
		m.mustTo(StateFailed)
		return finish(fmt.Errorf("%w: %w", ErrExecutionFailed, ErrNoPlan))
	}

	m.mustTo(StateRunningPrimary)
	res.Tier = primary.Tier
	res.Attempts++
	size, primaryErr := e.attempt(ctx, primary, output, res.Attempts)
	if primaryErr == nil {
		res.Size = size
		m.mustTo(StateSuccess)
		return finish(nil)
	}

	if fallback == nil || ctx.Err() != nil {
		m.mustTo(StateFailed)
		return finish(fmt.Errorf("%w: %s: %w", ErrExecutionFailed, primary.Tier, primaryErr))
	}

	e.logger.Warn("primary encode failed, running fallback",
		slog.String("tier", string(primary.Tier)),
		slog.String("error", primaryErr.Error()),
	)
	m.mustTo(StateRunningFallback)

	fp := fallback()
	if fp == nil {
		m.mustTo(StateFailed)
		return finish(fmt.Errorf("%w: %s: %w; fallback: %w", ErrExecutionFailed, primary.Tier, primaryErr, ErrNoPlan))
	}
	res.Tier = fp.Tier
	res.Attempts++
	size, fallbackErr := e.attempt(ctx, fp, output, res.Attempts)
	if fallbackErr != nil {
		m.mustTo(StateFailed)
		return finish(fmt.Errorf("%w: %s: %w; %s: %w",
			ErrExecutionFailed, primary.Tier, primaryErr, fp.Tier, fallbackErr))
	}
	res.Size = size
	m.mustTo(StateSuccess)
	return finish(nil)
}

// attempt runs one encode and verifies its output.
func (e *Executor) attempt(ctx context.Context, p *plan.Plan, output string, n int) (int64, error) {
	ev := telemetry.AttemptEvent{
		JobID:   telemetry.JobIDFromContext(ctx),
		Tier:    string(p.Tier),
		Attempt: n,
	}
	size, runRes, err := e.run(ctx, p, output)
	e.monitor.Checkpoint(fmt.Sprintf("after_%s_encode", p.Tier))

	ev.ExitCode = runRes.ExitCode
	ev.Elapsed = runRes.Elapsed
	ev.OutputBytes = size
	ev.Success = err == nil
	ev.Err = err
	e.recorder.Attempt(ev)

	if err == nil {
		e.logger.Info("encode succeeded",
			slog.String("tier", string(p.Tier)),
			slog.Int("attempt", n),
			slog.String("size", humanize.IBytes(uint64(size))),
			slog.Duration("elapsed", runRes.Elapsed),
		)
	}
	return size, err
}

func (e *Executor) run(ctx context.Context, p *plan.Plan, output string) (int64, media.RunResult, error) {
	if err := p.Validate(); err != nil {
		return 0, media.RunResult{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		return 0, media.RunResult{}, fmt.Errorf("remove stale output: %w", err)
	}

	timeout := e.timeouts[p.Tier]
	if timeout <= 0 {
		timeout = p.Tier.DefaultTimeout()
	}
	cmd := p.Compile(e.ffmpegPath, output)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Debug("running encode",
		slog.String("plan", p.String()),
		slog.String("filter_complex", cmd.FilterGraph),
	)
	res, err := e.runner.Run(ctx, cmd.Executable, cmd.Args())
	if err != nil {
		return 0, res, err
	}

	info, err := os.Stat(output)
	if err != nil {
		return 0, res, fmt.Errorf("%w: %s", ErrOutputMissing, output)
	}
	if info.Size() == 0 {
		return 0, res, fmt.Errorf("%w: %s", ErrEmptyOutput, output)
	}
	return info.Size(), res, nil
}
