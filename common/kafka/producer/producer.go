// common/kafka/producer/producer.go

// Package producer — синхронный Kafka-продьюсер на Sarama с back-off,
// метриками и трассировкой.
package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/tradeflow/common/backoff"
	commonkafka "github.com/YaganovValera/tradeflow/common/kafka"
	"github.com/YaganovValera/tradeflow/common/logger"
)

var serviceLabel = "unknown"

// SetServiceLabel вызывается из common.InitServiceName(..) один раз при старте.
func SetServiceLabel(name string) { serviceLabel = name }

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	opsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "operations_total",
			Help: "Kafka producer operations by kind (connect|publish|ping) and result (ok|error)",
		},
		[]string{"service", "op", "result"},
	)
	publishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "publish_latency_seconds",
			Help:    "Publish latency including retries (seconds)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	opsTotal.WithLabelValues(serviceLabel, op, result).Inc()
}

var tracer = otel.Tracer("kafka-producer")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config — настройки SyncProducer. Нулевые значения заменяются дефолтами.
type Config struct {
	Brokers []string `mapstructure:"brokers"`

	// RequiredAcks: "all" (дефолт) | "leader" | "none".
	RequiredAcks string `mapstructure:"acks"`

	// Timeout — ожидание ack от кластера.
	Timeout time.Duration `mapstructure:"timeout"`

	// Compression: "none" (дефолт) | "gzip" | "snappy" | "lz4" | "zstd".
	Compression string `mapstructure:"compression"`

	// FlushFrequency / FlushMessages — батчинг; ноль отключает.
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	FlushMessages  int           `mapstructure:"flush_messages"`

	// Backoff — ретраи подключения и отправки. MaxElapsedTime всегда
	// ограничен, иначе Publish мог бы висеть бесконечно.
	Backoff backoff.Config `mapstructure:"backoff"`
}

var acksByName = map[string]sarama.RequiredAcks{
	"all":    sarama.WaitForAll,
	"leader": sarama.WaitForLocal,
	"none":   sarama.NoResponse,
}

var codecByName = map[string]sarama.CompressionCodec{
	"none":   sarama.CompressionNone,
	"gzip":   sarama.CompressionGZIP,
	"snappy": sarama.CompressionSnappy,
	"lz4":    sarama.CompressionLZ4,
	"zstd":   sarama.CompressionZSTD,
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
	if c.Backoff.MaxElapsedTime <= 0 {
		c.Backoff.MaxElapsedTime = 10 * time.Second
	}
	if c.Backoff.RandomizationFactor == 0 {
		c.Backoff.RandomizationFactor = backoff.DefaultJitter
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers required")
	}
	return nil
}

func buildSaramaConfig(c Config) (*sarama.Config, error) {
	c.applyDefaults()
	acks, ok := acksByName[strings.ToLower(c.RequiredAcks)]
	if !ok {
		return nil, fmt.Errorf("kafka producer: invalid RequiredAcks %q", c.RequiredAcks)
	}
	codec, ok := codecByName[strings.ToLower(c.Compression)]
	if !ok {
		return nil, fmt.Errorf("kafka producer: invalid Compression %q", c.Compression)
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = acks
	sc.Producer.Compression = codec
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = c.Timeout
	// Sarama разрешает идемпотентность только при acks=all
	if acks == sarama.WaitForAll {
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1
	}
	if c.FlushFrequency > 0 {
		sc.Producer.Flush.Frequency = c.FlushFrequency
	}
	if c.FlushMessages > 0 {
		sc.Producer.Flush.Messages = c.FlushMessages
	}
	return sc, nil
}

// -----------------------------------------------------------------------------
// Producer
// -----------------------------------------------------------------------------

type kafkaProducer struct {
	prod    sarama.SyncProducer
	client  sarama.Client
	log     *logger.Logger
	backoff backoff.Config
	now     func() time.Time
}

// New подключается к кластеру (с ретраями) и возвращает SyncProducer,
// обёрнутый в otelsarama.
func New(ctx context.Context, cfg Config, log *logger.Logger) (commonkafka.Producer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	log = log.Named("kafka-producer")

	ctx, span := tracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers)))
	defer span.End()

	var (
		client   sarama.Client
		syncProd sarama.SyncProducer
	)
	connect := func(context.Context) error {
		c, err := sarama.NewClient(cfg.Brokers, sc)
		if err != nil {
			observe("connect", err)
			return err
		}
		p, err := sarama.NewSyncProducerFromClient(c)
		if err != nil {
			_ = c.Close()
			observe("connect", err)
			return err
		}
		observe("connect", nil)
		client, syncProd = c, p
		return nil
	}
	if err := backoff.Execute(ctx, cfg.Backoff, log, connect); err != nil {
		span.RecordError(err)
		log.Error("kafka producer connect failed", zap.Error(err))
		return nil, fmt.Errorf("kafka producer: connect: %w", err)
	}

	log.Info("kafka producer ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("acks", cfg.RequiredAcks),
	)
	return &kafkaProducer{
		prod:    otelsarama.WrapSyncProducer(sc, syncProd),
		client:  client,
		log:     log,
		backoff: cfg.Backoff,
		now:     time.Now,
	}, nil
}

// Publish отправляет одно сообщение; временная ошибка брокера ретраится.
func (k *kafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	ctx, span := tracer.Start(ctx, "Publish", trace.WithAttributes(
		attribute.String("topic", topic),
		attribute.Int("bytes", len(value)),
	))
	defer span.End()

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: k.now(),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}

	start := time.Now()
	var partition int32
	var offset int64
	err := backoff.Execute(ctx, k.backoff, k.log, func(context.Context) error {
		var err error
		partition, offset, err = k.prod.SendMessage(msg)
		return err
	})
	publishLatency.WithLabelValues(serviceLabel).Observe(time.Since(start).Seconds())
	observe("publish", err)

	if err != nil {
		span.RecordError(err)
		k.log.Error("publish failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	k.log.Debug("published",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Ping обновляет метаданные кластера.
func (k *kafkaProducer) Ping(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Ping")
	defer span.End()

	if k.client == nil {
		return errors.New("kafka producer: no client")
	}
	err := k.client.RefreshMetadata()
	observe("ping", err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Close закрывает продьюсер, затем клиент; ошибки объединяются.
func (k *kafkaProducer) Close() error {
	err := k.prod.Close()
	if k.client != nil && !k.client.Closed() {
		err = errors.Join(err, k.client.Close())
	}
	if err != nil {
		k.log.Error("kafka producer close failed", zap.Error(err))
		return err
	}
	k.log.Info("kafka producer closed")
	return nil
}
