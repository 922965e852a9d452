// common/redis/config.go
package redis

import (
	"fmt"
	"time"

	"github.com/YaganovValera/tradeflow/common/backoff"
)

type Config struct {
	Addr        string         `mapstructure:"addr"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	TTL         time.Duration  `mapstructure:"ttl"`
	DialTimeout time.Duration  `mapstructure:"dial_timeout"`
	ServiceName string         `mapstructure:"-"`
	Backoff     backoff.Config `mapstructure:"backoff"`
}

func (c *Config) ApplyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.Backoff.MaxElapsedTime <= 0 {
		c.Backoff.MaxElapsedTime = 5 * time.Second
	}
	if c.Backoff.RandomizationFactor == 0 {
		c.Backoff.RandomizationFactor = backoff.DefaultJitter
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis: addr is required")
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: db must be >= 0")
	}
	return nil
}
