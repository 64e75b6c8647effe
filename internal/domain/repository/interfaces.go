package repository

import (
	"context"
	"time"

	"KPISentinel/internal/domain/models"
)

// SeriesStore is the bounded, per-metric, in-memory window of samples.
// Append is the only mutator.
type SeriesStore interface {
	Append(name string, ts time.Time, value float64) error
	Snapshot(name string) []models.Sample
	ListMetricNames() []string
	Len(name string) int
}

// AlertLog persists emitted alerts for audit.
type AlertLog interface {
	Insert(ctx context.Context, a models.Alert) error
	Recent(ctx context.Context, metric string, limit int) ([]models.Alert, error)
	Close() error
}

// Publisher publishes a payload keyed by metric name.
type Publisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
	Close() error
}

type Metrics interface {
	RecordIngested(source string)
	RecordRejected(source, reason string)
	RecordAlert(direction string)
	RecordSinkError(sink string)
	RecordSeries(n int)
	RecordLatency(op string, seconds float64)
}
