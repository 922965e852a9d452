// internal/aggregator/engine.go
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/internal/metrics"
	"github.com/YaganovValera/tradeflow/internal/model"
)

// Filter отбирает сделки для запроса; nil означает «все».
type Filter func(model.Trade) bool

// ByCoin — фильтр по монете.
func ByCoin(coin string) Filter {
	return func(t model.Trade) bool { return t.Coin == coin }
}

// Engine хранит рабочий набор сделок за окно и строит снимки по запросу.
// Окно общее для всех монет: вытеснение глобальное, фильтр — на запрос.
type Engine struct {
	cfg Config
	geo Geometry
	log *logger.Logger
	now func() time.Time

	mu     sync.Mutex
	trades []model.Trade // в порядке поступления
}

// NewEngine применяет значения по умолчанию и проверяет cfg.
func NewEngine(cfg Config, log *logger.Logger) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	geo := Geometry{
		Thresholds:  cfg.thresholds(),
		SeriesWidth: cfg.SeriesWidth,
		SeriesCount: cfg.SeriesCount,
	}
	return &Engine{
		cfg: cfg,
		geo: geo,
		log: log.Named("aggregator"),
		now: time.Now,
	}, nil
}

// Ingest добавляет сделку в рабочий набор.
func (e *Engine) Ingest(t model.Trade) {
	e.mu.Lock()
	e.trades = append(e.trades, t)
	n := len(e.trades)
	e.mu.Unlock()

	metrics.TradesIngested.WithLabelValues(t.Coin).Inc()
	metrics.WorkingSetSize.Set(float64(n))
}

// Evict удаляет сделки старше now-Window и возвращает их число.
func (e *Engine) Evict() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evictLocked(e.now())
}

func (e *Engine) evictLocked(now time.Time) int {
	before := len(e.trades)
	e.trades = FilterRecent(e.trades, now.Add(-e.cfg.Window))
	removed := before - len(e.trades)
	if removed > 0 {
		metrics.TradesEvicted.Add(float64(removed))
	}
	metrics.WorkingSetSize.Set(float64(len(e.trades)))
	return removed
}

// collect вытесняет устаревшие сделки и копирует подходящие под фильтр.
func (e *Engine) collect(filter Filter) ([]model.Trade, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.evictLocked(now)
	out := make([]model.Trade, 0, len(e.trades))
	for _, t := range e.trades {
		if filter == nil || filter(t) {
			out = append(out, t)
		}
	}
	return out, now
}

// Snapshot вытесняет устаревшие сделки и агрегирует отобранные filter.
// Агрегация идёт вне блокировки, по копии.
func (e *Engine) Snapshot(filter Filter) Snapshot {
	start := time.Now()
	trades, now := e.collect(filter)
	s := Aggregate(trades, now, e.geo)
	metrics.SnapshotLatency.Observe(time.Since(start).Seconds())
	return s
}

// SnapshotCoin — Snapshot по одной монете.
func (e *Engine) SnapshotCoin(coin string) Snapshot {
	s := e.Snapshot(ByCoin(coin))
	s.Coin = coin
	return s
}

// Recent возвращает до limit последних поступивших сделок монеты, новые первыми.
func (e *Engine) Recent(coin string, limit int) []model.Trade {
	if limit <= 0 {
		return nil
	}
	trades, _ := e.collect(ByCoin(coin))
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades
}

// LastPrice — цена последней поступившей сделки монеты в окне.
func (e *Engine) LastPrice(coin string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.evictLocked(e.now())
	for i := len(e.trades) - 1; i >= 0; i-- {
		if e.trades[i].Coin == coin {
			return e.trades[i].Price, true
		}
	}
	return 0, false
}

// Len — текущий размер рабочего набора (без вытеснения).
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.trades)
}

// Run периодически вытесняет устаревшие сделки до отмены ctx.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.EvictInterval)
	defer ticker.Stop()

	e.log.Info("evict loop started",
		zap.Duration("window", e.cfg.Window),
		zap.Duration("interval", e.cfg.EvictInterval),
	)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("evict loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if n := e.Evict(); n > 0 {
				e.log.Debug("evicted trades", zap.Int("count", n))
			}
		}
	}
}
