package notify

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff yields exponentially growing reconnect intervals between min and
// max with ±5% jitter.
type backoff struct {
	min, max time.Duration
	attempt  int
	noJitter bool
}

func (b *backoff) next() time.Duration {
	minInterval, maxInterval := b.min, b.max
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	factor := math.Pow(2, min(
		float64(b.attempt),
		math.Log2(float64(maxInterval)/float64(minInterval)),
	))
	b.attempt++

	if !b.noJitter {
		// #nosec G404
		factor *= .95 + .1*rand.Float64()
	}
	return time.Duration(factor * float64(minInterval))
}

func (b *backoff) reset() { b.attempt = 0 }
