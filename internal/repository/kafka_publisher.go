package repository

import (
	"context"

	"KPISentinel/internal/domain/repository"
	pkgkafka "KPISentinel/pkg/kafka"
)

// KafkaPublisher implements Publisher for a single Kafka topic.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	return p.producer.Publish(ctx, p.topic, []byte(key), payload)
}

// PublishMessage lets the log collector ship aggregated entries through the same producer.
func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaPublisher) Close() error {
	return nil // producer is shared and closed by the app
}

var _ repository.Publisher = (*KafkaPublisher)(nil)
