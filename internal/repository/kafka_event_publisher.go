package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	pkgkafka "FinScan/pkg/kafka"
)

// Publisher is the part of pkg/kafka.Producer used for lifecycle events.
type Publisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaEventPublisher publishes lifecycle events keyed by symbol, so every
// event of one symbol lands on the same partition in order.
type KafkaEventPublisher struct {
	producer Publisher
	topic    string
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

// NewKafkaEventPublisher writes lifecycle events to topic.
func NewKafkaEventPublisher(producer Publisher, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

// PublishLifecycle encodes ev as JSON keyed by recommendation id, so events
// of one recommendation stay ordered on a partition.
func (p *KafkaEventPublisher) PublishLifecycle(ctx context.Context, ev models.LifecycleEvent) error {
	traceID := pkgkafka.TraceID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:   []byte(ev.Symbol),
		Value: ev,
		Headers: []kafka.Header{
			{Key: "trace_id", Value: []byte(traceID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
