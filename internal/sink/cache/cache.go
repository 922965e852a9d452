// internal/sink/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/tradeflow/common/backoff"
	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/common/redis"
	"github.com/YaganovValera/tradeflow/internal/aggregator"
)

var (
	cacheMetrics = struct {
		GetErrors        prometheus.Counter
		SetErrors        prometheus.Counter
		OperationLatency prometheus.Histogram
	}{
		GetErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tradeflow", Subsystem: "redis", Name: "get_errors_total",
			Help: "Total number of errors on Redis GET",
		}),
		SetErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tradeflow", Subsystem: "redis", Name: "set_errors_total",
			Help: "Total number of errors on Redis SET",
		}),
		OperationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tradeflow", Subsystem: "redis", Name: "operation_latency_seconds",
			Help:    "Latency of Redis operations",
			Buckets: prometheus.DefBuckets,
		}),
	}
	tracer = otel.Tracer("tradeflow/cache")
)

// ErrNotFound возвращается, если снимка по монете нет (или истёк TTL).
var ErrNotFound = errors.New("cache: snapshot not found")

// KeyPrefix — префикс ключей снимков.
const KeyPrefix = "tradeflow:snapshot:"

// Key возвращает ключ снимка монеты; пустая монета — сводный снимок.
func Key(coin string) string {
	if coin == "" {
		coin = "_all"
	}
	return KeyPrefix + coin
}

// Cache хранит последние снимки по монетам в Redis с TTL.
type Cache struct {
	client     *goredis.Client
	ttl        time.Duration
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New соединяется с Redis (Ping с retry) и возвращает Cache.
func New(ctx context.Context, cfg redis.Config, log *logger.Logger) (*Cache, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	c := newCache(client, cfg, log)

	ctxConn, span := tracer.Start(ctx, "Cache.Connect", trace.WithAttributes(attribute.String("addr", cfg.Addr)))
	defer span.End()
	if err := backoff.Execute(ctxConn, cfg.Backoff, c.log, c.Ping); err != nil {
		span.RecordError(err)
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect %s: %w", cfg.Addr, err)
	}
	c.log.Info("redis: connected", zap.String("addr", cfg.Addr))
	return c, nil
}

func newCache(client *goredis.Client, cfg redis.Config, log *logger.Logger) *Cache {
	return &Cache{
		client:     client,
		ttl:        cfg.TTL,
		log:        log.Named("redis-cache"),
		backoffCfg: cfg.Backoff,
	}
}

// Name — имя sink-а для метрик и логов.
func (c *Cache) Name() string { return "redis" }

// Publish сохраняет снимок под ключом монеты с TTL.
func (c *Cache) Publish(ctx context.Context, s aggregator.Snapshot) error {
	ctxOp, span := tracer.Start(ctx, "Cache.Publish", trace.WithAttributes(attribute.String("coin", s.Coin)))
	defer span.End()

	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}

	key := Key(s.Coin)
	start := time.Now()
	op := func(ctx context.Context) error {
		return c.client.Set(ctx, key, value, c.ttl).Err()
	}
	if err := backoff.Execute(ctxOp, c.backoffCfg, c.log, op); err != nil {
		cacheMetrics.SetErrors.Inc()
		c.log.WithContext(ctx).Error("redis SET failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	cacheMetrics.OperationLatency.Observe(time.Since(start).Seconds())
	return nil
}

// Get возвращает сохранённый снимок монеты или ErrNotFound.
func (c *Cache) Get(ctx context.Context, coin string) (aggregator.Snapshot, error) {
	ctxOp, span := tracer.Start(ctx, "Cache.Get", trace.WithAttributes(attribute.String("coin", coin)))
	defer span.End()

	key := Key(coin)
	start := time.Now()
	var data []byte
	op := func(ctx context.Context) error {
		val, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return backoff.Permanent(ErrNotFound)
		}
		if err != nil {
			return err
		}
		data = val
		return nil
	}
	if err := backoff.Execute(ctxOp, c.backoffCfg, c.log, op); err != nil {
		if errors.Is(err, ErrNotFound) {
			return aggregator.Snapshot{}, ErrNotFound
		}
		cacheMetrics.GetErrors.Inc()
		c.log.WithContext(ctx).Error("redis GET failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		return aggregator.Snapshot{}, fmt.Errorf("cache: get %s: %w", key, err)
	}
	cacheMetrics.OperationLatency.Observe(time.Since(start).Seconds())

	var s aggregator.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return aggregator.Snapshot{}, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return s, nil
}

// Ping проверяет соединение.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (c *Cache) Close() error {
	return c.client.Close()
}
