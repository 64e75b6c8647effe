package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ingested   *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	alerts     *prometheus.CounterVec
	sinkErrors *prometheus.CounterVec
	series     prometheus.Gauge
	latency    *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kpi_samples_ingested_total",
				Help: "Total number of samples accepted into the series store",
			},
			[]string{"source"},
		),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kpi_samples_rejected_total",
				Help: "Total number of samples rejected at the ingestion boundary",
			},
			[]string{"source", "reason"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kpi_alerts_total",
				Help: "Total number of anomaly alerts raised",
			},
			[]string{"direction"},
		),
		sinkErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kpi_sink_errors_total",
				Help: "Total number of failed alert deliveries",
			},
			[]string{"sink"},
		),
		series: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "kpi_series_tracked",
				Help: "Number of metric series held in memory",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kpi_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordIngested records an accepted sample.
func (r *Recorder) RecordIngested(source string) {
	r.ingested.WithLabelValues(source).Inc()
}

// RecordRejected records a rejected sample.
func (r *Recorder) RecordRejected(source, reason string) {
	r.rejected.WithLabelValues(source, reason).Inc()
}

// RecordAlert records a raised alert.
func (r *Recorder) RecordAlert(direction string) {
	r.alerts.WithLabelValues(direction).Inc()
}

// RecordSinkError records a failed delivery for a sink.
func (r *Recorder) RecordSinkError(sink string) {
	r.sinkErrors.WithLabelValues(sink).Inc()
}

// RecordSeries sets the number of tracked series.
func (r *Recorder) RecordSeries(n int) {
	r.series.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all observations.
type Nop struct{}

func (Nop) RecordIngested(string)         {}
func (Nop) RecordRejected(string, string) {}
func (Nop) RecordAlert(string)            {}
func (Nop) RecordSinkError(string)        {}
func (Nop) RecordSeries(int)              {}
func (Nop) RecordLatency(string, float64) {}
