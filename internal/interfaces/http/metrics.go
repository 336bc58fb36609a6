package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// MetricsRegistry holds all Prometheus metrics for the engine. It satisfies
// pipeline.Observer and datasources.CacheStats so both layers report into the
// same registry without importing this package's server.
type MetricsRegistry struct {
	StageDuration *prometheus.HistogramVec
	StageRows     *prometheus.CounterVec

	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	PipelineErrors *prometheus.CounterVec

	ActiveRuns prometheus.Gauge
	TotalRuns  prometheus.Counter

	registry *prometheus.Registry
}

// NewMetricsRegistry creates a registry with every engine metric registered.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "amenityscan_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"stage", "result"},
		),

		StageRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amenityscan_stage_rows_total",
				Help: "Total observations processed per pipeline stage",
			},
			[]string{"stage"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "amenityscan_cache_hit_ratio",
				Help: "Current source-table cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amenityscan_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amenityscan_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amenityscan_pipeline_errors_total",
				Help: "Total number of pipeline errors by stage",
			},
			[]string{"stage", "error_type"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "amenityscan_active_runs",
				Help: "Number of currently executing pipeline runs",
			},
		),

		TotalRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "amenityscan_runs_total",
				Help: "Total number of pipeline runs initiated",
			},
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.StageDuration,
		m.StageRows,
		m.CacheHitRatio,
		m.CacheHits,
		m.CacheMisses,
		m.PipelineErrors,
		m.ActiveRuns,
		m.TotalRuns,
	)

	return m
}

// StageDone records one completed pipeline stage.
func (m *MetricsRegistry) StageDone(stage, result string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage, result).Observe(d.Seconds())

	log.Debug().
		Str("stage", stage).
		Str("result", result).
		Dur("duration", d).
		Msg("Pipeline stage completed")
}

// RowsProcessed records how many observations a stage handled.
func (m *MetricsRegistry) RowsProcessed(stage string, n int) {
	m.StageRows.WithLabelValues(stage).Add(float64(n))
}

// RecordCacheHit records a cache hit for the specified cache type.
func (m *MetricsRegistry) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the specified cache type.
func (m *MetricsRegistry) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordPipelineError records a pipeline error.
func (m *MetricsRegistry) RecordPipelineError(stage, errorType string) {
	m.PipelineErrors.WithLabelValues(stage, errorType).Inc()
	log.Warn().
		Str("stage", stage).
		Str("error_type", errorType).
		Msg("Pipeline error recorded")
}

// RunStarted increments the run gauges.
func (m *MetricsRegistry) RunStarted() {
	m.ActiveRuns.Inc()
	m.TotalRuns.Inc()
}

// RunFinished decrements the active run gauge.
func (m *MetricsRegistry) RunFinished() {
	m.ActiveRuns.Dec()
}

// updateCacheHitRatio recomputes the hit ratio across all cache types.
func (m *MetricsRegistry) updateCacheHitRatio() {
	hitMetric := &io_prometheus_client.Metric{}
	missMetric := &io_prometheus_client.Metric{}

	totalHits := 0.0
	totalMisses := 0.0

	cacheTypes := []string{"source_table"}
	for _, cacheType := range cacheTypes {
		if hitCounter, err := m.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := hitCounter.Write(hitMetric); err == nil {
				totalHits += hitMetric.GetCounter().GetValue()
			}
		}
		if missCounter, err := m.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := missCounter.Write(missMetric); err == nil {
				totalMisses += missMetric.GetCounter().GetValue()
			}
		}
	}

	total := totalHits + totalMisses
	if total > 0 {
		m.CacheHitRatio.Set(totalHits / total)
	}
}

// Handler returns an HTTP handler serving this registry in Prometheus
// exposition format.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
