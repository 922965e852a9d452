// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/tradeflow/common"
	"github.com/YaganovValera/tradeflow/common/httpserver"
	"github.com/YaganovValera/tradeflow/common/kafka/producer"
	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/common/shutdown"
	"github.com/YaganovValera/tradeflow/common/telemetry"
	"github.com/YaganovValera/tradeflow/internal/aggregator"
	"github.com/YaganovValera/tradeflow/internal/api"
	"github.com/YaganovValera/tradeflow/internal/config"
	"github.com/YaganovValera/tradeflow/internal/metrics"
	"github.com/YaganovValera/tradeflow/internal/publisher"
	"github.com/YaganovValera/tradeflow/internal/sink/cache"
	"github.com/YaganovValera/tradeflow/internal/sink/kafkasink"
	"github.com/YaganovValera/tradeflow/internal/transport/hyperliquid"
)

const shutdownTimeout = 5 * time.Second

// App связывает клиент биржи, движок агрегации, HTTP API и sink-и.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	engine *aggregator.Engine
	client *hyperliquid.Client
	pub    *publisher.Publisher
	http   httpserver.HTTPServer

	shutdownTracer telemetry.ShutdownFunc
}

// Run собирает App и блокируется до отмены ctx или фатальной ошибки.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// New инициализирует все компоненты, но ничего не запускает.
// При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	common.InitServiceName(cfg.ServiceName)
	metrics.Register(nil)
	hyperliquid.RegisterMetrics(nil)

	a := &App{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var err error

	// Трассировка
	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	a.shutdownTracer, err = telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Движок и клиент
	a.engine, err = aggregator.NewEngine(cfg.Aggregator, log)
	if err != nil {
		return nil, fmt.Errorf("aggregator init: %w", err)
	}
	a.client, err = hyperliquid.New(cfg.Hyperliquid, log)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid client init: %w", err)
	}
	a.client.OnTrade(a.engine.Ingest)
	a.client.OnStatus(func(s hyperliquid.State) {
		log.Info("connection state changed", zap.Stringer("state", s))
	})

	// Sink-и снимков
	sinks, err := buildSinks(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if len(sinks) > 0 {
		a.pub, err = publisher.New(a.engine, cfg.Hyperliquid.Coins, cfg.Publisher.Interval, log, sinks...)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, fmt.Errorf("publisher init: %w", err)
		}
	}

	// HTTP: API + /metrics, /healthz, /readyz
	handler := api.New(a.engine, a.client, cfg.Hyperliquid.Coins, log)
	a.http, err = httpserver.New(cfg.HTTP, a.Ready, handler.Routes(), log)
	if err != nil {
		return nil, fmt.Errorf("httpserver init: %w", err)
	}
	ok = true
	return a, nil
}

func buildSinks(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]publisher.Sink, error) {
	var sinks []publisher.Sink

	if cfg.Kafka.Enabled {
		prod, err := producer.New(ctx, cfg.Kafka.Config, log)
		if err != nil {
			return nil, fmt.Errorf("kafka producer init: %w", err)
		}
		sinks = append(sinks, kafkasink.New(prod, cfg.Kafka.Topic, log))
	}
	if cfg.Redis.Enabled {
		cfg.Redis.ServiceName = cfg.ServiceName
		c, err := cache.New(ctx, cfg.Redis.Config, log)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, fmt.Errorf("redis cache init: %w", err)
		}
		sinks = append(sinks, c)
	}
	return sinks, nil
}

// Ready — готовность: соединение с биржей установлено.
func (a *App) Ready() error {
	if st := a.client.State(); st != hyperliquid.StateConnected {
		return fmt.Errorf("hyperliquid: %s", st)
	}
	return nil
}

// Handler — корневой HTTP-обработчик (для тестов).
func (a *App) Handler() http.Handler { return a.http.Handler() }

// Engine — движок агрегации.
func (a *App) Engine() *aggregator.Engine { return a.engine }

// Run запускает HTTP, очистку окна, публикацию и клиент биржи.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.http.Start(gctx) })
	g.Go(func() error { return a.engine.Run(gctx) })
	if a.pub != nil {
		g.Go(func() error { return a.pub.Run(gctx) })
	}
	g.Go(func() error {
		a.client.Start(gctx)
		<-gctx.Done()
		a.client.Stop()
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("tradeflow stopped by context")
	return nil
}

func (a *App) close() {
	if a.client != nil {
		a.client.Stop()
	}
	if a.pub != nil {
		shutdown.GracefulShutdown("publisher", shutdownTimeout, shutdown.Closer(a.pub.Close), a.log)
	}
	if a.shutdownTracer != nil {
		shutdown.GracefulShutdown("telemetry", shutdownTimeout, a.shutdownTracer, a.log)
	}
}
