// internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	commonprom "github.com/YaganovValera/tradeflow/common/prometheus"
)

var (
	once sync.Once

	// TradesIngested — сделки, принятые движком агрегации.
	TradesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeflow",
		Subsystem: "aggregator",
		Name:      "trades_ingested_total",
		Help:      "Total number of trades ingested into the working set",
	}, []string{"coin"})

	// TradesEvicted — сделки, вытесненные из окна.
	TradesEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tradeflow",
		Subsystem: "aggregator",
		Name:      "trades_evicted_total",
		Help:      "Total number of trades evicted from the working set",
	})

	// WorkingSetSize — текущий размер рабочего набора.
	WorkingSetSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradeflow",
		Subsystem: "aggregator",
		Name:      "working_set_size",
		Help:      "Number of trades currently retained in the window",
	})

	// SnapshotLatency — время построения снимка.
	SnapshotLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradeflow",
		Subsystem: "aggregator",
		Name:      "snapshot_latency_seconds",
		Help:      "Latency of computing an aggregation snapshot",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
	})

	// SinkPublishes — публикации снимков по sink и результату.
	SinkPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeflow",
		Subsystem: "publisher",
		Name:      "sink_publishes_total",
		Help:      "Snapshot publications by sink and status",
	}, []string{"sink", "status"})
)

// Register регистрирует все метрики в r (nil → DefaultRegisterer).
// Повторные вызовы игнорируются.
func Register(r prometheus.Registerer) {
	once.Do(func() {
		commonprom.RegisterAll(r,
			TradesIngested,
			TradesEvicted,
			WorkingSetSize,
			SnapshotLatency,
			SinkPublishes,
		)
	})
}
