package media

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// fakeRunner records invocations and delegates behaviour to fn.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(ctx context.Context, name string, args []string) (RunResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string) (RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.fn == nil {
		return RunResult{}, nil
	}
	return f.fn(ctx, name, args)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingCheckpointer counts checkpoint labels and emergency reclaims.
type recordingCheckpointer struct {
	labels     []string
	threshold  uint64
	emergency  []uint64
	overBudget bool
}

func (r *recordingCheckpointer) Checkpoint(label string) uint64 {
	r.labels = append(r.labels, label)
	return 0
}

func (r *recordingCheckpointer) Threshold() uint64 { return r.threshold }

func (r *recordingCheckpointer) EmergencyReclaimIfOver(threshold uint64) bool {
	r.emergency = append(r.emergency, threshold)
	return r.overBudget
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSized writes a file of n bytes.
func writeSized(path string, n int) error {
	return os.WriteFile(path, make([]byte, n), 0600)
}

// lastArg returns the output path from an ffmpeg argv.
func lastArg(args []string) string {
	return args[len(args)-1]
}
