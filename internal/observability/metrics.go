package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// learning engine.
type Metrics struct {
	SamplesConsumed prometheus.Counter
	SamplesAccepted prometheus.Counter
	SamplesRejected *prometheus.CounterVec // labels: reason={invalid,outlier}
	GateFailures    *prometheus.CounterVec // labels: gate={engine_off,stable_heading,steady_wind,min_speed}
	Recording       prometheus.Gauge
	SteadySeconds   prometheus.Gauge

	// Persistence metrics.
	PersistDuration   prometheus.Histogram
	PersistErrors     prometheus.Counter
	PersistQueueDrops prometheus.Counter

	// Shore uplink metrics.
	UplinkPublished  prometheus.Counter
	UplinkErrors     prometheus.Counter
	UplinkQueueDrops prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SamplesConsumed,
		m.SamplesAccepted,
		m.SamplesRejected,
		m.GateFailures,
		m.Recording,
		m.SteadySeconds,
		m.PersistDuration,
		m.PersistErrors,
		m.PersistQueueDrops,
		m.UplinkPublished,
		m.UplinkErrors,
		m.UplinkQueueDrops,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SamplesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "samples_consumed_total",
			Help:      "Total instrument samples received from the source.",
		}),
		SamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "samples_accepted_total",
			Help:      "Total samples accepted into the performance table.",
		}),
		SamplesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "samples_rejected_total",
			Help:      "Samples rejected before or at the bucket store, by reason.",
		}, []string{"reason"}),
		GateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "gate_failures_total",
			Help:      "Hard gate failures by gate.",
		}, []string{"gate"}),
		Recording: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "polar_engine",
			Name:      "recording",
			Help:      "1 while the steady-state dwell has been met and samples are recorded.",
		}),
		SteadySeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "polar_engine",
			Name:      "steady_seconds",
			Help:      "Seconds of continuous gate eligibility accumulated so far.",
		}),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "polar_engine",
			Name:      "persist_duration_seconds",
			Help:      "Duration of a single bucket upsert.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "persist_errors_total",
			Help:      "Failed bucket upserts. In-memory state stays authoritative.",
		}),
		PersistQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "persist_queue_drops_total",
			Help:      "Bucket writes dropped because the persistence queue was full.",
		}),
		UplinkPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "uplink_published_total",
			Help:      "Recorded observations published to the shore uplink.",
		}),
		UplinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "uplink_errors_total",
			Help:      "Failed uplink publishes.",
		}),
		UplinkQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar_engine",
			Name:      "uplink_queue_drops_total",
			Help:      "Observations dropped because the uplink queue was full.",
		}),
	}
}
