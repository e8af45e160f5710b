package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromRecorder exports events as Prometheus metrics on an injected registry.
type PromRecorder struct {
	rss            *prometheus.GaugeVec
	reclaims       prometheus.Counter
	reclaimedBytes prometheus.Counter
	attempts       *prometheus.CounterVec
	encodeSeconds  *prometheus.HistogramVec
	jobs           *prometheus.CounterVec
	jobSeconds     prometheus.Histogram
	outputBytes    prometheus.Histogram
	peakMemory     prometheus.Gauge
}

// NewPromRecorder registers the compiler metrics on reg.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	f := promauto.With(reg)
	return &PromRecorder{
		rss: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "video_compiler_memory_rss_bytes",
			Help: "Resident set size observed at the last checkpoint",
		}, []string{"checkpoint"}),
		reclaims: f.NewCounter(prometheus.CounterOpts{
			Name: "video_compiler_memory_reclaims_total",
			Help: "Total forced memory reclaims",
		}),
		reclaimedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "video_compiler_memory_reclaimed_bytes_total",
			Help: "Total resident bytes released by forced reclaims",
		}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "video_compiler_encode_attempts_total",
			Help: "Total transcoder runs by tier and result",
		}, []string{"tier", "result"}),
		encodeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "video_compiler_encode_duration_seconds",
			Help:    "Wall-clock duration of transcoder runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
		}, []string{"tier"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "video_compiler_jobs_total",
			Help: "Total compile jobs by final tier and result",
		}, []string{"tier", "result"}),
		jobSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "video_compiler_job_duration_seconds",
			Help:    "End-to-end duration of compile jobs",
			Buckets: prometheus.ExponentialBuckets(2, 2, 10),
		}),
		outputBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "video_compiler_output_bytes",
			Help:    "Size of compiled videos",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 12), // 1MiB to 2GiB
		}),
		peakMemory: f.NewGauge(prometheus.GaugeOpts{
			Name: "video_compiler_job_peak_memory_bytes",
			Help: "Peak resident set size of the last job",
		}),
	}
}

func (p *PromRecorder) Checkpoint(label string, rss uint64) {
	p.rss.WithLabelValues(label).Set(float64(rss))
}

func (p *PromRecorder) Reclaim(_ string, before, after uint64) {
	p.reclaims.Inc()
	if before > after {
		p.reclaimedBytes.Add(float64(before - after))
	}
}

func (p *PromRecorder) Attempt(e AttemptEvent) {
	p.attempts.WithLabelValues(e.Tier, result(e.Success)).Inc()
	p.encodeSeconds.WithLabelValues(e.Tier).Observe(e.Elapsed.Seconds())
}

func (p *PromRecorder) Job(e JobEvent) {
	p.jobs.WithLabelValues(e.Tier, result(e.Success)).Inc()
	p.jobSeconds.Observe(e.Elapsed.Seconds())
	p.peakMemory.Set(float64(e.PeakMemory))
	if e.Success {
		p.outputBytes.Observe(float64(e.OutputBytes))
	}
}
