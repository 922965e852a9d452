// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/YaganovValera/tradeflow/common/configloader"
	"github.com/YaganovValera/tradeflow/common/httpserver"
	"github.com/YaganovValera/tradeflow/common/kafka/producer"
	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/common/redis"
	"github.com/YaganovValera/tradeflow/common/telemetry"
	"github.com/YaganovValera/tradeflow/internal/aggregator"
	"github.com/YaganovValera/tradeflow/internal/transport/hyperliquid"
)

// EnvPrefix — префикс переменных окружения: TRADEFLOW_HYPERLIQUID_COINS и т.п.
const EnvPrefix = "TRADEFLOW"

/*
   --------------------------------------------------------------------------
   СТРУКТУРЫ
   --------------------------------------------------------------------------
*/

// Config — все настройки сервиса.
type Config struct {
	ServiceName    string             `mapstructure:"service_name"`
	ServiceVersion string             `mapstructure:"service_version"`
	Hyperliquid    hyperliquid.Config `mapstructure:"hyperliquid"`
	Aggregator     aggregator.Config  `mapstructure:"aggregator"`
	HTTP           httpserver.Config  `mapstructure:"http"`
	Kafka          KafkaConfig        `mapstructure:"kafka"`
	Redis          RedisConfig        `mapstructure:"redis"`
	Publisher      PublisherConfig    `mapstructure:"publisher"`
	Telemetry      telemetry.Config   `mapstructure:"telemetry"`
	Logging        logger.Config      `mapstructure:"logging"`
}

// KafkaConfig — sink снимков в Kafka.
type KafkaConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Topic           string `mapstructure:"topic"`
	producer.Config `mapstructure:",squash"`
}

// RedisConfig — кэш последних снимков.
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

// PublisherConfig — период публикации снимков в sink-и.
type PublisherConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

/*
   --------------------------------------------------------------------------
   LOADER
   --------------------------------------------------------------------------
*/

// Defaults — значения по умолчанию для всех ключей. ENV читается только для
// ключей, у которых есть default, поэтому здесь перечислены все.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"service_name":    "tradeflow",
		"service_version": "v1.0.0",

		// Hyperliquid
		"hyperliquid.ws_url":                         "wss://api.hyperliquid.xyz/ws",
		"hyperliquid.coins":                          []string{"BTC", "ETH", "SOL", "HYPE"},
		"hyperliquid.handshake_timeout":              "10s",
		"hyperliquid.read_timeout":                   "60s",
		"hyperliquid.write_timeout":                  "5s",
		"hyperliquid.reconnect.initial_interval":     "500ms",
		"hyperliquid.reconnect.randomization_factor": 0.0,
		"hyperliquid.reconnect.multiplier":           2.0,
		"hyperliquid.reconnect.max_interval":         "8s",
		"hyperliquid.background_multiplier":          3.0,
		"hyperliquid.background":                     false,

		// Aggregator
		"aggregator.window":         "60s",
		"aggregator.evict_interval": "10s",
		"aggregator.series_width":   "5s",
		"aggregator.series_count":   12,
		"aggregator.thresholds":     []float64{10_000, 100_000, 1_000_000},

		// HTTP
		"http.addr":             ":8080",
		"http.read_timeout":     "10s",
		"http.write_timeout":    "15s",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "5s",
		"http.metrics_path":     "/metrics",
		"http.healthz_path":     "/healthz",
		"http.readyz_path":      "/readyz",

		// Kafka
		"kafka.enabled":     false,
		"kafka.brokers":     []string{"localhost:9092"},
		"kafka.topic":       "tradeflow.snapshots",
		"kafka.acks":        "leader",
		"kafka.timeout":     "5s",
		"kafka.compression": "none",

		// Redis
		"redis.enabled":  false,
		"redis.addr":     "localhost:6379",
		"redis.password": "",
		"redis.db":       0,
		"redis.ttl":      "30s",

		// Publisher
		"publisher.interval": "5s",

		// Telemetry
		"telemetry.enabled":       false,
		"telemetry.otel_endpoint": "otel-collector:4317",
		"telemetry.insecure":      true,
		"telemetry.sampler_ratio": 1.0,

		// Logging
		"logging.level":    "info",
		"logging.dev_mode": false,
	}
}

// Load загружает и валидирует конфиг. Если path пустой — читаются только ENV и defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := configloader.Load(path, EnvPrefix, Defaults(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет связность секций. Детальная проверка каждой секции
// выполняется её конструктором.
func (c *Config) Validate() error {
	var errs []string

	if c.ServiceName == "" {
		errs = append(errs, "service_name is required")
	}
	if c.Hyperliquid.WSURL == "" {
		errs = append(errs, "hyperliquid.ws_url is required")
	}
	if len(c.Hyperliquid.Coins) == 0 {
		errs = append(errs, "hyperliquid.coins must not be empty")
	}
	if err := c.Aggregator.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, "http.addr is required")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka.brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka.topic is required")
		}
	}
	if c.Redis.Enabled {
		if err := c.Redis.Config.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if (c.Kafka.Enabled || c.Redis.Enabled) && c.Publisher.Interval <= 0 {
		errs = append(errs, "publisher.interval must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Print выводит итоговый конфиг без секретов (для --print-config).
func (c *Config) Print(w io.Writer) error {
	masked := *c
	if masked.Redis.Password != "" {
		masked.Redis.Password = "***"
	}
	return configloader.PrintConfig(w, &masked)
}
