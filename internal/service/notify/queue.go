package notify

import (
	"context"
	"fmt"

	"KPISentinel/internal/domain/models"
	"KPISentinel/pkg/queue"
)

// QueueSink hands alerts to the job queue for retried delivery.
type QueueSink struct {
	queue   queue.Publisher
	msgType string
}

func NewQueueSink(q queue.Publisher, msgType string) *QueueSink {
	return &QueueSink{queue: q, msgType: msgType}
}

func (s *QueueSink) Name() string { return "queue" }

func (s *QueueSink) Notify(ctx context.Context, a models.Alert) error {
	if err := s.queue.PublishMessage(ctx, s.msgType, a); err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}
	return nil
}
