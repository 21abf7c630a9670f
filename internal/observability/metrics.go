package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aqi_fusion"

// Metrics holds the Prometheus counters, histograms, and gauges for pipeline runs and the query server.
type Metrics struct {
	ReadingsCleaned *prometheus.CounterVec // labels: network
	SourceErrors    *prometheus.CounterVec // labels: source
	OverlapRows     prometheus.Gauge
	NetworkWeight   *prometheus.GaugeVec // labels: network
	WeightsFallback prometheus.Gauge
	TractsMeasured  *prometheus.GaugeVec // labels: network
	TractsOutput    prometheus.Gauge
	TractsGapFilled prometheus.Gauge
	StageDuration   *prometheus.HistogramVec // labels: stage
	SinkErrors      *prometheus.CounterVec   // labels: sink

	// PurpleAir API metrics.
	PurpleAirRequests *prometheus.CounterVec // labels: endpoint={sensors,history}, outcome={success,error,retry}
	PurpleAirDuration *prometheus.HistogramVec

	// Query server metrics.
	LookupCache *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates all metrics and registers them with reg.
// One-shot commands pass a private registry so nothing is exported globally.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsCleaned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_cleaned_total",
			Help:      "Canonical readings produced per network.",
		}, []string{"network"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Sources that failed to extract.",
		}, []string{"source"}),
		OverlapRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overlap_rows",
			Help:      "Joined rows available to the weight estimator in the last run.",
		}),
		NetworkWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_weight",
			Help:      "Fusion weight applied to each network in the last run.",
		}, []string{"network"}),
		WeightsFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weights_fallback",
			Help:      "1 when the last run used configured fallback weights, 0 when estimated.",
		}),
		TractsMeasured: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracts_measured",
			Help:      "Tracts with at least one reading per network in the last run.",
		}, []string{"network"}),
		TractsOutput: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracts_output",
			Help:      "Tracts with a combined AQI in the last run.",
		}),
		TractsGapFilled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracts_gap_filled",
			Help:      "Tracts whose combined AQI came from neighbours in the last run.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed sink load attempts.",
		}, []string{"sink"}),
		PurpleAirRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purpleair_requests_total",
			Help:      "PurpleAir API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		PurpleAirDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purpleair_request_duration_seconds",
			Help:      "PurpleAir API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		LookupCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_total",
			Help:      "Point lookup cache results.",
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsCleaned,
		m.SourceErrors,
		m.OverlapRows,
		m.NetworkWeight,
		m.WeightsFallback,
		m.TractsMeasured,
		m.TractsOutput,
		m.TractsGapFilled,
		m.StageDuration,
		m.SinkErrors,
		m.PurpleAirRequests,
		m.PurpleAirDuration,
		m.LookupCache,
	}
}

// WriteTextfile writes the current values of m to path in the Prometheus text
// format, for batch runs collected by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return prometheus.WriteToTextfile(path, reg)
}
