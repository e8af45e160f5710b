// Package media runs the external transcoder and probe binaries and provides
// the per-clip duration prober and aspect normalizer built on them.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Static errors for subprocess execution.
var (
	// ErrTimeout is returned when a subprocess exceeds its deadline and is killed.
	ErrTimeout = errors.New("media: subprocess timed out")
	// ErrCancelled is returned when the caller's context is cancelled mid-run.
	ErrCancelled = errors.New("media: subprocess cancelled")
)

// stderrTailBytes bounds how much subprocess output is kept in memory.
const stderrTailBytes = 64 << 10

// RunResult is the outcome of one subprocess invocation.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
}

// Runner executes an external binary. Implementations must honour ctx
// deadlines by terminating the process.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (RunResult, error)
}

// ExecRunner implements Runner with os/exec. The child is started in its own
// process group so a timeout kill also reaps anything it spawned.
type ExecRunner struct {
	// KillGrace is how long Wait keeps waiting for output pipes after the kill.
	KillGrace time.Duration
}

// NewExecRunner creates an ExecRunner with default settings.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{KillGrace: 5 * time.Second}
}

// Run executes name with args. A non-zero exit yields *FFmpegError; an
// expired deadline yields an error wrapping ErrTimeout.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string) (RunResult, error) {
	// #nosec G204 - binary paths come from configuration, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = r.KillGrace

	stdout := newTailBuffer(stderrTailBytes)
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	res := RunResult{
		ExitCode: exitCode(cmd, err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, res.Elapsed.Round(time.Millisecond), name)
	case ctx.Err() != nil:
		return res, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	return res, &FFmpegError{
		Args:     args,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		Err:      err,
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// FFmpegError represents a failed transcoder or probe run, including the
// tail of its stderr output.
type FFmpegError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error (exit %d): %v\nargs: %v\nstderr: %s", e.ExitCode, e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.limit {
		t.buf.Reset()
		t.buf.Write(p[len(p)-t.limit:])
		return n, nil
	}
	if over := t.buf.Len() + len(p) - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
