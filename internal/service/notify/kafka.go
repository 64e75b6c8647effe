package notify

import (
	"context"
	"fmt"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
)

// KafkaSink publishes alerts keyed by metric name so one metric's alerts stay ordered.
type KafkaSink struct {
	pub domrepo.Publisher
}

func NewKafkaSink(pub domrepo.Publisher) *KafkaSink {
	return &KafkaSink{pub: pub}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Notify(ctx context.Context, a models.Alert) error {
	if err := s.pub.Publish(ctx, a.Metric, a); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.pub.Close() }
