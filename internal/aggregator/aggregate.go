// internal/aggregator/aggregate.go
package aggregator

import (
	"fmt"
	"time"

	"github.com/YaganovValera/tradeflow/internal/model"
)

// BucketVolume — объём бакета по сторонам.
type BucketVolume struct {
	Bucket Bucket  `json:"bucket"`
	Buy    float64 `json:"buy"`
	Sell   float64 `json:"sell"`
}

// SeriesPoint — окно ряда [Start, End); временная метка окна — End.
type SeriesPoint struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Buy   float64   `json:"buy"`
	Sell  float64   `json:"sell"`
}

// Snapshot — сводка по сделкам окна, пересчитывается целиком на каждый запрос.
type Snapshot struct {
	Coin       string         `json:"coin,omitempty"`
	At         time.Time      `json:"at"`
	TradeCount int            `json:"trade_count"`
	TotalBuy   float64        `json:"total_buy"`
	TotalSell  float64        `json:"total_sell"`
	BPI        float64        `json:"bpi"`
	Buckets    []BucketVolume `json:"buckets"`
	Series     []SeriesPoint  `json:"series"`
}

// Geometry — параметры агрегации, не зависящие от рабочего набора.
type Geometry struct {
	Thresholds  Thresholds
	SeriesWidth time.Duration
	SeriesCount int
}

// FilterRecent оставляет сделки с Timestamp >= cutoff, сохраняя порядок.
// Исходный срез не изменяется.
func FilterRecent(trades []model.Trade, cutoff time.Time) []model.Trade {
	out := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if !t.Timestamp.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// BPI = 100 × buy / (buy + sell); 50 при нулевом объёме.
func BPI(buy, sell float64) float64 {
	total := buy + sell
	if total <= 0 {
		return 50
	}
	return 100 * buy / total
}

// Aggregate строит Snapshot по trades относительно now.
// Итоги и бакеты учитывают все переданные сделки; ряд — только те, что
// попадают в его интервал.
func Aggregate(trades []model.Trade, now time.Time, g Geometry) Snapshot {
	s := Snapshot{
		At:         now,
		TradeCount: len(trades),
		Buckets:    make([]BucketVolume, bucketCount),
	}
	for i := range s.Buckets {
		s.Buckets[i].Bucket = Bucket(i)
	}

	for _, t := range trades {
		n := t.Notional()
		b := &s.Buckets[g.Thresholds.Classify(n)]
		switch t.Side {
		case model.SideBuy:
			s.TotalBuy += n
			b.Buy += n
		case model.SideSell:
			s.TotalSell += n
			b.Sell += n
		}
	}
	s.BPI = BPI(s.TotalBuy, s.TotalSell)
	s.Series = TimeSeries(trades, now, g.SeriesWidth, g.SeriesCount)
	return s
}

// TimeSeries раскладывает объём по count окнам шириной width, от старого
// к новому. Окно i: [now-(count-i)·width, now-(count-i-1)·width).
// Сделки с Timestamp >= now в ряд не попадают.
// Паника при width < 1ms или count <= 0.
func TimeSeries(trades []model.Trade, now time.Time, width time.Duration, count int) []SeriesPoint {
	if width < time.Millisecond || count <= 0 {
		panic(fmt.Sprintf("aggregator: invalid series geometry width=%v count=%d", width, count))
	}
	width = width.Truncate(time.Millisecond)

	nowMs := now.UnixMilli()
	w := width.Milliseconds()
	span := w * int64(count)
	end := time.UnixMilli(nowMs)

	points := make([]SeriesPoint, count)
	for i := range points {
		start := end.Add(-time.Duration(count-i) * width)
		points[i] = SeriesPoint{Start: start, End: start.Add(width)}
	}

	for _, t := range trades {
		d := nowMs - t.Timestamp.UnixMilli()
		if d <= 0 || d > span {
			continue
		}
		idx := count - 1 - int((d-1)/w)
		n := t.Notional()
		switch t.Side {
		case model.SideBuy:
			points[idx].Buy += n
		case model.SideSell:
			points[idx].Sell += n
		}
	}
	return points
}
