package repository

import (
	"context"
	"fmt"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
	pkgkafka "DropWatch/pkg/kafka"
)

// KafkaSignalPublisher emits drop signals to the alerting topic. Keyed
// by pair so downstream consumers see per-pair ordering.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSignalPublisher creates a Kafka-backed signal publisher.
func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) repository.SignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, e *models.DropEvent) error {
	key := []byte(fmt.Sprintf("%d:%d", e.ProductID, e.RetailerID))
	if err := p.producer.Publish(ctx, p.topic, key, e); err != nil {
		return fmt.Errorf("publish %s signal: %w", e.SignalType, err)
	}
	return nil
}

func (p *KafkaSignalPublisher) Close() error {
	return p.producer.Close()
}
