// Package metrics exports coordinator statistics and pipeline outcomes to
// Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"neurolint/internal/logging"
	"neurolint/internal/pipeline"
	"neurolint/internal/transform"
)

const namespace = "neurolint"

// StatsCollector reads transform.Stats at scrape time. The counters live in
// the coordinator, so nothing is double-counted here.
type StatsCollector struct {
	stats *transform.Stats

	astSuccesses     *prometheus.Desc
	patternFallbacks *prometheus.Desc
	patternDirect    *prometheus.Desc
	failures         *prometheus.Desc
	total            *prometheus.Desc
	fallbackRate     *prometheus.Desc
}

// NewStatsCollector creates a collector over stats.
func NewStatsCollector(stats *transform.Stats) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "coordinator", name), help, nil, nil)
	}
	return &StatsCollector{
		stats:            stats,
		astSuccesses:     desc("ast_successes_total", "Layer transforms completed by the AST path"),
		patternFallbacks: desc("pattern_fallbacks_total", "Layer transforms completed by the pattern path after the AST path failed"),
		patternDirect:    desc("pattern_direct_total", "Layer transforms completed by the pattern path of pattern-only layers"),
		failures:         desc("failures_total", "Layer transforms that failed on every available path"),
		total:            desc("transforms_total", "Layer transforms attempted"),
		fallbackRate:     desc("fallback_rate", "Share of AST-capable transforms that fell back to patterns"),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.astSuccesses
	ch <- c.patternFallbacks
	ch <- c.patternDirect
	ch <- c.failures
	ch <- c.total
	ch <- c.fallbackRate
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.astSuccesses, prometheus.CounterValue, float64(s.ASTSuccesses))
	ch <- prometheus.MustNewConstMetric(c.patternFallbacks, prometheus.CounterValue, float64(s.PatternFallbacks))
	ch <- prometheus.MustNewConstMetric(c.patternDirect, prometheus.CounterValue, float64(s.PatternDirect))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.Failures))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.fallbackRate, prometheus.GaugeValue, s.FallbackRate())
}

// RunRecorder counts per-layer outcomes and run durations.
type RunRecorder struct {
	layerOutcomes *prometheus.CounterVec
	runDuration   prometheus.Histogram
	filesChanged  prometheus.Counter
}

// NewRunRecorder creates the run metrics. NewRegistry registers them.
func NewRunRecorder() *RunRecorder {
	return &RunRecorder{
		layerOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "layer_outcomes_total",
				Help:      "Layer attempts by layer and final status",
			},
			[]string{"layer", "status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Wall time of one file through all requested layers",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		filesChanged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "files_changed_total",
				Help:      "Runs that proposed changed code",
			},
		),
	}
}

// ObserveRun records one finished run.
func (r *RunRecorder) ObserveRun(run *pipeline.Run) {
	if run == nil {
		return
	}
	for _, a := range run.Attempts {
		r.layerOutcomes.WithLabelValues(strconv.Itoa(int(a.LayerID)), string(a.Status)).Inc()
	}
	r.runDuration.Observe(run.Duration.Seconds())
	if run.Changed() {
		r.filesChanged.Inc()
	}
}

// Registry bundles a private registry with the neurolint collectors.
type Registry struct {
	*prometheus.Registry
	Runs *RunRecorder
}

// NewRegistry registers a StatsCollector over stats and a RunRecorder on a
// fresh registry.
func NewRegistry(stats *transform.Stats) (*Registry, error) {
	reg := prometheus.NewRegistry()
	runs := NewRunRecorder()
	for _, c := range []prometheus.Collector{
		NewStatsCollector(stats),
		runs.layerOutcomes,
		runs.runDuration,
		runs.filesChanged,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Registry{Registry: reg, Runs: runs}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}

// SetupEndpoint starts an HTTP server exposing the registry at path. The
// caller shuts it down.
func SetupEndpoint(addr, path string, reg *Registry) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, reg.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		logging.Get(logging.CategoryMetrics).Info("Serving metrics on %s%s", addr, path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Get(logging.CategoryMetrics).Error("Metrics server failed: %v", err)
		}
	}()

	return server
}
