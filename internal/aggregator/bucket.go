// internal/aggregator/bucket.go
package aggregator

import "fmt"

// Bucket — класс сделки по размеру notional.
type Bucket int

const (
	BucketSmall Bucket = iota
	BucketMedium
	BucketLarge
	BucketSuper

	bucketCount = 4
)

var bucketNames = [bucketCount]string{"small", "medium", "large", "super"}

func (b Bucket) String() string {
	if b < 0 || int(b) >= bucketCount {
		return "unknown"
	}
	return bucketNames[b]
}

func (b Bucket) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Bucket) UnmarshalText(text []byte) error {
	for i, name := range bucketNames {
		if string(text) == name {
			*b = Bucket(i)
			return nil
		}
	}
	return fmt.Errorf("aggregator: unknown bucket %q", text)
}

// Thresholds — верхние (не включительно) границы Small, Medium, Large.
type Thresholds [bucketCount - 1]float64

// DefaultThresholds: <10k Small, <100k Medium, <1M Large, иначе Super.
var DefaultThresholds = Thresholds{10_000, 100_000, 1_000_000}

// Classify относит notional ровно к одному бакету; границы закрыты снизу.
func (t Thresholds) Classify(notional float64) Bucket {
	for i, limit := range t {
		if notional < limit {
			return Bucket(i)
		}
	}
	return BucketSuper
}

// Classify по порогам по умолчанию.
func Classify(notional float64) Bucket { return DefaultThresholds.Classify(notional) }
