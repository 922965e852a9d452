// internal/publisher/publisher.go
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/internal/aggregator"
	"github.com/YaganovValera/tradeflow/internal/metrics"
)

var tracer = otel.Tracer("tradeflow/publisher")

// Sink принимает готовые снимки (Kafka, Redis).
type Sink interface {
	Name() string
	Publish(ctx context.Context, s aggregator.Snapshot) error
	Close() error
}

// Source отдаёт снимок по монете.
type Source interface {
	SnapshotCoin(coin string) aggregator.Snapshot
}

// Publisher раз в interval строит снимок по каждой монете и раздаёт его
// всем sink-ам. Ошибки sink-ов логируются и считаются, но не фатальны.
type Publisher struct {
	src      Source
	coins    []string
	interval time.Duration
	sinks    []Sink
	log      *logger.Logger
}

// New создаёт Publisher.
func New(src Source, coins []string, interval time.Duration, log *logger.Logger, sinks ...Sink) (*Publisher, error) {
	if src == nil {
		return nil, fmt.Errorf("publisher: source is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("publisher: interval must be > 0")
	}
	return &Publisher{
		src:      src,
		coins:    append([]string(nil), coins...),
		interval: interval,
		sinks:    sinks,
		log:      log.Named("publisher"),
	}, nil
}

// Enabled — есть ли хотя бы один sink.
func (p *Publisher) Enabled() bool { return len(p.sinks) > 0 }

// PublishOnce публикует по снимку на монету во все sink-и.
// Возвращает объединённые ошибки; успешные публикации не откатываются.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Publisher.PublishOnce")
	defer span.End()
	span.SetAttributes(attribute.Int("coins", len(p.coins)), attribute.Int("sinks", len(p.sinks)))

	var errs []error
	for _, coin := range p.coins {
		snap := p.src.SnapshotCoin(coin)
		for _, s := range p.sinks {
			if err := s.Publish(ctx, snap); err != nil {
				metrics.SinkPublishes.WithLabelValues(s.Name(), "error").Inc()
				errs = append(errs, fmt.Errorf("%s/%s: %w", s.Name(), coin, err))
				continue
			}
			metrics.SinkPublishes.WithLabelValues(s.Name(), "ok").Inc()
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Run публикует снимки с периодом interval до отмены ctx.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("publisher started",
		zap.Duration("interval", p.interval),
		zap.Strings("coins", p.coins),
		zap.Int("sinks", len(p.sinks)),
	)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("publisher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.log.Warn("publish round had failures", zap.Error(err))
			}
		}
	}
}

// Close закрывает все sink-и.
func (p *Publisher) Close() error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
