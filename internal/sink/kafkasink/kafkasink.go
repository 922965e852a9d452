// internal/sink/kafkasink/kafkasink.go

package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	commonkafka "github.com/YaganovValera/tradeflow/common/kafka"
	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/internal/aggregator"
)

var tracer = otel.Tracer("tradeflow/kafkasink")

// Sink публикует снимки в Kafka: ключ — монета, значение — JSON.
type Sink struct {
	producer commonkafka.Producer
	topic    string
	log      *logger.Logger
}

// New создаёт новый Kafka sink.
func New(producer commonkafka.Producer, topic string, log *logger.Logger) *Sink {
	return &Sink{
		producer: producer,
		topic:    topic,
		log:      log.Named("kafka-sink"),
	}
}

// Name — имя sink-а для метрик и логов.
func (s *Sink) Name() string { return "kafka" }

// Publish сериализует и публикует снимок в топик.
func (s *Sink) Publish(ctx context.Context, snap aggregator.Snapshot) error {
	ctx, span := tracer.Start(ctx, "KafkaSink.Publish",
		trace.WithAttributes(
			attribute.String("coin", snap.Coin),
			attribute.String("topic", s.topic),
		),
	)
	defer span.End()

	value, err := json.Marshal(snap)
	if err != nil {
		s.log.WithContext(ctx).Error("marshal snapshot failed", zap.Error(err))
		return fmt.Errorf("kafka-sink: marshal: %w", err)
	}

	if err := s.producer.Publish(ctx, s.topic, []byte(snap.Coin), value); err != nil {
		s.log.WithContext(ctx).Error("publish failed", zap.String("coin", snap.Coin), zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("kafka-sink: publish: %w", err)
	}
	return nil
}

// Close закрывает продьюсер.
func (s *Sink) Close() error { return s.producer.Close() }
