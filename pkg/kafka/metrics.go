package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// clientMetrics are shared by every producer and consumer in the process.
type clientMetrics struct {
	published  *prometheus.CounterVec
	pubBytes   *prometheus.CounterVec
	pubLatency *prometheus.HistogramVec

	handled      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	backlog      *prometheus.GaugeVec
	handleTime   *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	instruments *clientMetrics
)

func kafkaMetrics() *clientMetrics {
	metricsOnce.Do(func() {
		instruments = &clientMetrics{
			published: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kpi_kafka_published_total",
				Help: "Messages written to Kafka by result",
			}, []string{"topic", "result"}),
			pubBytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kpi_kafka_published_bytes_total",
				Help: "Payload bytes written to Kafka",
			}, []string{"topic"}),
			pubLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kpi_kafka_publish_seconds",
				Help:    "Write latency per batch",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
			handled: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kpi_kafka_consumed_total",
				Help: "Messages handled by the consumer by result",
			}, []string{"topic", "result"}),
			deadLettered: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kpi_kafka_dead_lettered_total",
				Help: "Messages forwarded to the dead-letter topic",
			}, []string{"topic"}),
			backlog: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "kpi_kafka_consumer_backlog",
				Help: "Fetched messages waiting for a worker",
			}, []string{"topic"}),
			handleTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kpi_kafka_handle_seconds",
				Help:    "Handling time per message including retries",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return instruments
}

func (m *clientMetrics) observePublish(topic string, n int, bytes int64, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(topic, result).Add(float64(n))
	m.pubBytes.WithLabelValues(topic).Add(float64(bytes))
	m.pubLatency.WithLabelValues(topic).Observe(took.Seconds())
}

func (m *clientMetrics) observeHandled(topic string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.handled.WithLabelValues(topic, result).Inc()
	m.handleTime.WithLabelValues(topic).Observe(took.Seconds())
}
