// internal/transport/hyperliquid/parse.go
package hyperliquid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/YaganovValera/tradeflow/internal/model"
)

// TradesChannel — канал, в котором биржа присылает сделки.
const TradesChannel = "trades"

// MaxClockSkew — насколько время сделки может опережать время приёма.
// Более поздние метки считаются битыми и заменяются временем приёма.
const MaxClockSkew = time.Minute

// ErrNotTradeChannel — конверт пришёл из другого канала (pong,
// subscriptionResponse и т.п.); такие сообщения просто пропускаются.
var ErrNotTradeChannel = errors.New("hyperliquid: not a trades channel")

// Result — итог разбора одной записи: либо Trade, либо Err.
type Result struct {
	Trade model.Trade
	Err   error
}

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wireTrade struct {
	Coin string          `json:"coin"`
	Px   json.RawMessage `json:"px"`
	Sz   json.RawMessage `json:"sz"`
	Side string          `json:"side"`
	Time json.RawMessage `json:"time"`
}

// ParseMessage разбирает конверт и возвращает по Result на каждую запись
// в порядке следования. Ошибка уровня конверта возвращается вторым
// значением; ошибки отдельных записей не прерывают пакет.
// now подставляется как время сделки, если поле time отсутствует или битое.
func ParseMessage(data []byte, now time.Time) ([]Result, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode envelope: %w", err)
	}
	if env.Channel != TradesChannel {
		return nil, fmt.Errorf("%w: %q", ErrNotTradeChannel, env.Channel)
	}

	raw := bytes.TrimSpace(env.Data)
	var records []json.RawMessage
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return nil, fmt.Errorf("hyperliquid: empty data")
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("hyperliquid: decode data array: %w", err)
		}
	case raw[0] == '{':
		records = []json.RawMessage{raw}
	default:
		return nil, fmt.Errorf("hyperliquid: unexpected data payload")
	}

	out := make([]Result, 0, len(records))
	for _, rec := range records {
		tr, err := parseTrade(rec, now)
		out = append(out, Result{Trade: tr, Err: err})
	}
	return out, nil
}

func parseTrade(raw json.RawMessage, now time.Time) (model.Trade, error) {
	var w wireTrade
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Trade{}, fmt.Errorf("hyperliquid: decode trade: %w", err)
	}

	coin := strings.TrimSpace(w.Coin)
	if coin == "" {
		return model.Trade{}, fmt.Errorf("hyperliquid: trade without coin")
	}
	px, err := positiveNumber(w.Px)
	if err != nil {
		return model.Trade{}, fmt.Errorf("hyperliquid: px: %w", err)
	}
	sz, err := positiveNumber(w.Sz)
	if err != nil {
		return model.Trade{}, fmt.Errorf("hyperliquid: sz: %w", err)
	}
	side, err := model.ParseSide(w.Side)
	if err != nil {
		return model.Trade{}, err
	}

	return model.Trade{
		Coin:      coin,
		Price:     px,
		Size:      sz,
		Side:      side,
		Timestamp: parseTime(w.Time, now),
	}, nil
}

// positiveNumber принимает число или строку с числом ("45000.5").
func positiveNumber(raw json.RawMessage) (float64, error) {
	d, err := decimalFrom(raw)
	if err != nil {
		return 0, err
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d.String())
	}
	// в float64 очень малое значение обнуляется, очень большое уходит в +Inf
	f, _ := d.Float64()
	if f <= 0 || math.IsInf(f, 0) {
		return 0, fmt.Errorf("out of float64 range: %s", d.String())
	}
	return f, nil
}

func decimalFrom(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Decimal{}, fmt.Errorf("missing")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, err
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}

// parseTime ждёт epoch в миллисекундах; иначе время приёма. Метки позже
// now+MaxClockSkew тоже заменяются временем приёма: такую сделку окно
// никогда бы не вытеснило.
func parseTime(raw json.RawMessage, now time.Time) time.Time {
	d, err := decimalFrom(raw)
	if err != nil || d.Sign() <= 0 {
		return now
	}
	limit := now.Add(MaxClockSkew).UnixMilli()
	if d.GreaterThan(decimal.NewFromInt(limit)) {
		return now
	}
	return time.UnixMilli(d.IntPart())
}
