// internal/model/trade.go
package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSide возвращается ParseSide для значений, отличных от "B"/"S".
var ErrInvalidSide = errors.New("model: invalid side")

// Side — сторона агрессора сделки.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

// ParseSide разбирает биржевой код стороны: "B" → buy, "S" → sell.
func ParseSide(s string) (Side, error) {
	switch s {
	case "B":
		return SideBuy, nil
	case "S":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// MarshalText используется encoding/json для ключей и значений.
func (s Side) MarshalText() ([]byte, error) {
	if s != SideBuy && s != SideSell {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "buy":
		*s = SideBuy
	case "sell":
		*s = SideSell
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSide, text)
	}
	return nil
}

// Trade — нормализованная сделка. Значение неизменяемое, передаётся по копии.
type Trade struct {
	Coin      string    `json:"coin"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      Side      `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// Notional = Price × Size.
func (t Trade) Notional() float64 { return t.Price * t.Size }
