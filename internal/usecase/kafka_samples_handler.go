package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	domrepo "KPISentinel/internal/domain/repository"
	pkgkafka "KPISentinel/pkg/kafka"
	applogger "KPISentinel/pkg/logger"
)

// KafkaSamplesHandler consumes samples published to Kafka and feeds the ingest path.
// Payloads use the same schema as POST /ingest.
type KafkaSamplesHandler struct {
	topic  string
	ingest *IngestUseCase
}

func NewKafkaSamplesHandler(topic string, ingest *IngestUseCase) *KafkaSamplesHandler {
	return &KafkaSamplesHandler{topic: topic, ingest: ingest}
}

func (h *KafkaSamplesHandler) Topic() string { return h.topic }

// Handle ingests one message. Rejected payloads are permanent failures so the consumer can dead-letter them.
func (h *KafkaSamplesHandler) Handle(_ context.Context, b []byte) error {
	if _, err := h.ingest.IngestPayload(SourceKafka, b); err != nil {
		return fmt.Errorf("%w: ingest: %w", pkgkafka.ErrSkipRetry, err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSamplesHandler)(nil)

type attemptStartKey struct{}

// NewSamplesConsumerHook times every handling attempt and logs the failed ones.
func NewSamplesConsumerHook(l *applogger.Logger, m domrepo.Metrics) pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ kafka.Message) (context.Context, error) {
			return context.WithValue(ctx, attemptStartKey{}, time.Now()), nil
		},
		After: func(ctx context.Context, msg kafka.Message, attempt int, err error) {
			if start, ok := ctx.Value(attemptStartKey{}).(time.Time); ok {
				m.RecordLatency("kafka_handle", time.Since(start).Seconds())
			}
			if err == nil {
				return
			}
			l.Warn("kafka sample not ingested",
				applogger.String("topic", msg.Topic),
				applogger.Int("partition", msg.Partition),
				applogger.Int64("offset", msg.Offset),
				applogger.Int("attempt", attempt),
				applogger.Error(err))
		},
	}
}
