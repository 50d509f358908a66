// Package metrics exposes storyreel counters and histograms in the
// Prometheus text format. A nil *Registry is valid and records nothing, so
// callers never need to guard optional instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storyreel"

// Registry owns every storyreel collector.
type Registry struct {
	reg *prometheus.Registry

	generations       *prometheus.CounterVec
	generationSeconds prometheus.Histogram
	promptFallbacks   prometheus.Counter
	jobsAccepted      prometheus.Counter
	jobTransitions    *prometheus.CounterVec
	stageSeconds      *prometheus.HistogramVec
	images            *prometheus.CounterVec
	podStops          *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
}

// New registers the storyreel collectors alongside the Go and process
// collectors.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Script orchestrator runs by outcome.",
		}, []string{"outcome"}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of a script orchestrator run, including the render trigger.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		promptFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clip_prompt_fallbacks_total",
			Help:      "Clip image prompts that fell back to the clip text.",
		}),
		jobsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_jobs_accepted_total",
			Help:      "Render jobs accepted by POST /process.",
		}),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_job_transitions_total",
			Help:      "Render job status transitions.",
		}, []string{"status"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of worker stages.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"stage", "outcome"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Clip images by source.",
		}, []string{"source"}),
		podStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pod_stops_total",
			Help:      "GPU pod stop attempts by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_jobs",
			Help:      "Render jobs in the queue by status.",
		}, []string{"status"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.generations,
		r.generationSeconds,
		r.promptFallbacks,
		r.jobsAccepted,
		r.jobTransitions,
		r.stageSeconds,
		r.images,
		r.podStops,
		r.queueDepth,
	)
	return r
}

// Handler serves the registry for scraping.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) ObserveGeneration(success bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.generations.WithLabelValues(outcome(success)).Inc()
	r.generationSeconds.Observe(elapsed.Seconds())
}

func (r *Registry) AddPromptFallbacks(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.promptFallbacks.Add(float64(n))
}

func (r *Registry) JobAccepted() {
	if r == nil {
		return
	}
	r.jobsAccepted.Inc()
}

func (r *Registry) JobTransition(status string) {
	if r == nil {
		return
	}
	r.jobTransitions.WithLabelValues(status).Inc()
}

func (r *Registry) ObserveStage(stage string, success bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageSeconds.WithLabelValues(stage, outcome(success)).Observe(elapsed.Seconds())
}

// ImageRendered counts a clip image by source: "generated" or "placeholder".
func (r *Registry) ImageRendered(source string) {
	if r == nil {
		return
	}
	r.images.WithLabelValues(source).Inc()
}

// PodStop counts a stop attempt: "stopped", "failed" or "skipped".
func (r *Registry) PodStop(result string) {
	if r == nil {
		return
	}
	r.podStops.WithLabelValues(result).Inc()
}

// SetQueueDepth replaces the per-status queue gauges.
func (r *Registry) SetQueueDepth(counts map[string]int) {
	if r == nil {
		return
	}
	r.queueDepth.Reset()
	for status, n := range counts {
		r.queueDepth.WithLabelValues(status).Set(float64(n))
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
