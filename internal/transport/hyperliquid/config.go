// internal/transport/hyperliquid/config.go
package hyperliquid

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/YaganovValera/tradeflow/common/backoff"
)

// Config задаёт параметры подключения к Hyperliquid WebSocket.
type Config struct {
	WSURL            string        `mapstructure:"ws_url"`            // например "wss://api.hyperliquid.xyz/ws"
	Coins            []string      `mapstructure:"coins"`             // ["BTC","ETH"], по одной подписке на монету
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // таймаут dial + upgrade
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`      // ReadDeadline, продлевается каждым сообщением
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`     // WriteDeadline для subscribe/ping

	// Reconnect — политика задержек между переподключениями.
	// MaxElapsedTime игнорируется: клиент переподключается бесконечно.
	Reconnect backoff.Config `mapstructure:"reconnect"`

	// BackgroundMultiplier растягивает задержку, пока клиент в фоне.
	BackgroundMultiplier float64 `mapstructure:"background_multiplier"`

	// Background — стартовать в фоновом режиме (см. Client.SetBackground).
	Background bool `mapstructure:"background"`
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Reconnect.InitialInterval <= 0 {
		c.Reconnect.InitialInterval = 500 * time.Millisecond
	}
	if c.Reconnect.Multiplier <= 0 {
		c.Reconnect.Multiplier = 2
	}
	if c.Reconnect.MaxInterval <= 0 {
		c.Reconnect.MaxInterval = 8 * time.Second
	}
	c.Reconnect.MaxElapsedTime = 0
	if c.BackgroundMultiplier <= 0 {
		c.BackgroundMultiplier = 3
	}
}

func (c Config) validate() error {
	var errs []string

	if c.WSURL == "" {
		errs = append(errs, "ws_url is required")
	} else if u, err := url.Parse(c.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Sprintf("ws_url %q must be a ws:// or wss:// URL", c.WSURL))
	}
	if len(c.Coins) == 0 {
		errs = append(errs, "at least one coin is required")
	}
	for i, coin := range c.Coins {
		if strings.TrimSpace(coin) == "" {
			errs = append(errs, fmt.Sprintf("coins[%d] is empty", i))
		}
	}
	if c.BackgroundMultiplier < 1 {
		errs = append(errs, "background_multiplier must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("hyperliquid: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
