package memory

import (
	"runtime"

	"github.com/prometheus/procfs"
)

// Sampler reports the resident memory of the current process.
type Sampler interface {
	RSS() (uint64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (uint64, error)

func (f SamplerFunc) RSS() (uint64, error) { return f() }

// ProcSampler reads the resident set size from /proc/self/stat.
type ProcSampler struct{}

func (ProcSampler) RSS() (uint64, error) {
	p, err := procfs.Self()
	if err != nil {
		return 0, err
	}
	stat, err := p.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(stat.ResidentMemory()), nil
}

// RuntimeSampler reports memory obtained from the OS by the Go runtime. It
// ignores memory held by child processes and cgo allocations.
type RuntimeSampler struct{}

func (RuntimeSampler) RSS() (uint64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys, nil
}

type fallbackSampler struct {
	primary, secondary Sampler
}

func (f fallbackSampler) RSS() (uint64, error) {
	if v, err := f.primary.RSS(); err == nil {
		return v, nil
	}
	return f.secondary.RSS()
}

// DefaultSampler uses procfs where available and the runtime statistics
// everywhere else.
func DefaultSampler() Sampler {
	return fallbackSampler{primary: ProcSampler{}, secondary: RuntimeSampler{}}
}
