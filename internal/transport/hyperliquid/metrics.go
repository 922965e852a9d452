// internal/transport/hyperliquid/metrics.go
package hyperliquid

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	commonprom "github.com/YaganovValera/tradeflow/common/prometheus"
)

var (
	once sync.Once

	wsConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeflow", Subsystem: "hyperliquid", Name: "connects_total",
		Help: "Total WebSocket connection attempts",
	}, []string{"status"})

	wsErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeflow", Subsystem: "hyperliquid", Name: "errors_total",
		Help: "Total categorized WebSocket errors",
	}, []string{"type"})

	wsMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeflow", Subsystem: "hyperliquid", Name: "messages_total",
		Help: "Total messages received from Hyperliquid WS",
	}, []string{"type"})

	wsRecordDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tradeflow", Subsystem: "hyperliquid", Name: "record_drops_total",
		Help: "Trade records dropped as malformed",
	})

	wsState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradeflow", Subsystem: "hyperliquid", Name: "connection_state",
		Help: "Current connection state (0=disconnected,1=connecting,2=connected,3=error)",
	})
)

// RegisterMetrics регистрирует метрики клиента один раз.
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		commonprom.RegisterAll(r, wsConnects, wsErrors, wsMessages, wsRecordDrops, wsState)
	})
}

func incConnect(status string)  { wsConnects.WithLabelValues(status).Inc() }
func incError(errType string)   { wsErrors.WithLabelValues(errType).Inc() }
func incMessage(msgType string) { wsMessages.WithLabelValues(msgType).Inc() }
func incDrop()                  { wsRecordDrops.Inc() }
func setStateGauge(s State)     { wsState.Set(float64(s)) }
