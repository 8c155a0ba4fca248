package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "minesafe"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Hazard event log metrics.
	HazardEvents   *prometheus.CounterVec // labels: node_type, severity
	HazardRejected *prometheus.CounterVec // labels: reason={validation,not_found,invalid_reading,internal}
	PublishErrors  prometheus.Counter

	// Tracking metrics.
	TrackingSessions prometheus.Gauge
	TrackingTicks    *prometheus.CounterVec // labels: outcome={success,error}

	// Maps provider metrics.
	MapsRequests    *prometheus.CounterVec   // labels: method={place_details,directions}, outcome={success,error,empty}
	MapsAPIDuration *prometheus.HistogramVec // labels: method
	PlaceCache      *prometheus.CounterVec   // labels: result={hit,miss}

	// Kafka ingest metrics.
	ReadingsConsumed        prometheus.Counter
	ReadingsFailed          prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.HazardEvents,
		m.HazardRejected,
		m.PublishErrors,
		m.TrackingSessions,
		m.TrackingTicks,
		m.MapsRequests,
		m.MapsAPIDuration,
		m.PlaceCache,
		m.ReadingsConsumed,
		m.ReadingsFailed,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		HazardEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_events_total",
			Help:      "Classified events appended to safety node logs.",
		}, []string{"node_type", "severity"}),
		HazardRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_rejected_total",
			Help:      "Readings that were not appended, by reason.",
		}, []string{"reason"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_publish_errors_total",
			Help:      "Hazard notices that could not be published to the bus.",
		}),
		TrackingSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracking_sessions_active",
			Help:      "Live tracking streams currently open.",
		}),
		TrackingTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_ticks_total",
			Help:      "Tracking ticks by outcome.",
		}, []string{"outcome"}),
		MapsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maps_requests_total",
			Help:      "Maps provider requests by method and outcome.",
		}, []string{"method", "outcome"}),
		MapsAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "maps_api_duration_seconds",
			Help:      "Maps provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		PlaceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "place_cache_total",
			Help:      "Place details cache lookups by result.",
		}, []string{"result"}),
		ReadingsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_consumed_total",
			Help:      "Sensor readings read from the readings topic.",
		}),
		ReadingsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_failed_total",
			Help:      "Sensor readings skipped because they could not be recorded.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the ingest pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_size",
			Help:      "Number of readings per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_duration_seconds",
			Help:      "Duration of a complete ingest batch cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
