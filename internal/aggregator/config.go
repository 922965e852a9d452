// internal/aggregator/config.go
package aggregator

import (
	"fmt"
	"strings"
	"time"
)

// Config — геометрия окна и ряда, пороги бакетов.
type Config struct {
	Window        time.Duration `mapstructure:"window"`         // удержание сделок, 60s
	EvictInterval time.Duration `mapstructure:"evict_interval"` // период фоновой очистки, 10s
	SeriesWidth   time.Duration `mapstructure:"series_width"`   // ширина окна ряда, 5s
	SeriesCount   int           `mapstructure:"series_count"`   // число окон ряда, 12
	Thresholds    []float64     `mapstructure:"thresholds"`     // границы Small/Medium/Large/Super
}

func (c *Config) applyDefaults() {
	if c.Window == 0 {
		c.Window = 60 * time.Second
	}
	if c.EvictInterval == 0 {
		c.EvictInterval = 10 * time.Second
	}
	if c.SeriesWidth == 0 {
		c.SeriesWidth = 5 * time.Second
	}
	if c.SeriesCount == 0 {
		c.SeriesCount = 12
	}
	if len(c.Thresholds) == 0 {
		c.Thresholds = append([]float64(nil), DefaultThresholds[:]...)
	}
}

// Validate отклоняет неположительные длительности и неупорядоченные пороги.
func (c Config) Validate() error {
	var errs []string

	if c.Window <= 0 {
		errs = append(errs, "window must be > 0")
	}
	if c.EvictInterval <= 0 {
		errs = append(errs, "evict_interval must be > 0")
	}
	if c.SeriesWidth < time.Millisecond {
		errs = append(errs, "series_width must be >= 1ms")
	}
	if c.SeriesCount <= 0 {
		errs = append(errs, "series_count must be > 0")
	}
	if len(c.Thresholds) != len(DefaultThresholds) {
		errs = append(errs, fmt.Sprintf("thresholds must have %d values", len(DefaultThresholds)))
	} else {
		prev := 0.0
		for i, v := range c.Thresholds {
			if v <= prev {
				errs = append(errs, fmt.Sprintf("thresholds[%d]=%v must be > %v", i, v, prev))
			}
			prev = v
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("aggregator: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c Config) thresholds() Thresholds {
	var t Thresholds
	copy(t[:], c.Thresholds)
	return t
}
