package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// aggregation pipeline.
type Metrics struct {
	YearsProcessed    prometheus.Counter
	CountriesDirect   prometheus.Counter
	FallbackUsed      prometheus.Counter
	FallbackExhausted *prometheus.CounterVec // label: reason={no_geometry,over_cap,no_data}
	PartitionsWritten prometheus.Counter
	PipelineRunning   prometheus.Gauge

	// Per-year stage timings.
	MaskingDuration        prometheus.Histogram
	PartitionWriteDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		YearsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "years_processed_total",
			Help:      "Total grid years fully aggregated and persisted.",
		}),
		CountriesDirect: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "countries_direct_total",
			Help:      "Country-year results produced from direct grid coverage.",
		}),
		FallbackUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "fallback_used_total",
			Help:      "Country-year results produced via nearest-cell fallback.",
		}),
		FallbackExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "fallback_exhausted_total",
			Help:      "Countries left unresolved after fallback, by reason.",
		}, []string{"reason"}),
		PartitionsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "partitions_written_total",
			Help:      "Year partitions atomically published.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climate_etl",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		MaskingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climate_etl",
			Name:      "masking_duration_seconds",
			Help:      "Duration of region masking and reduction for one year.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		PartitionWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climate_etl",
			Name:      "partition_write_duration_seconds",
			Help:      "Duration of the atomic partition write for one year.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	prometheus.MustRegister(
		m.YearsProcessed,
		m.CountriesDirect,
		m.FallbackUsed,
		m.FallbackExhausted,
		m.PartitionsWritten,
		m.PipelineRunning,
		m.MaskingDuration,
		m.PartitionWriteDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		YearsProcessed:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_etl", Name: "years_processed_total"}),
		CountriesDirect:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_etl", Name: "countries_direct_total"}),
		FallbackUsed:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_etl", Name: "fallback_used_total"}),
		FallbackExhausted:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "climate_etl", Name: "fallback_exhausted_total"}, []string{"reason"}),
		PartitionsWritten:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_etl", Name: "partitions_written_total"}),
		PipelineRunning:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "climate_etl", Name: "pipeline_running"}),
		MaskingDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "climate_etl", Name: "masking_duration_seconds"}),
		PartitionWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "climate_etl", Name: "partition_write_duration_seconds"}),
	}
}
