// common/prometheus/prometheus.go
package prometheus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRegistry — стандартный глобальный реестр метрик, его же отдаёт /metrics.
var DefaultRegistry prometheus.Registerer = prometheus.DefaultRegisterer

// RegisterAll регистрирует коллекторы в r (nil → DefaultRegistry).
// Повторная регистрация того же коллектора не считается ошибкой,
// остальные ошибки приводят к panic, как у MustRegister.
func RegisterAll(r prometheus.Registerer, cs ...prometheus.Collector) {
	if r == nil {
		r = DefaultRegistry
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}
