package syncqueue

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before the next attempt of an operation.
// Formula: min(Base * 2^retryCount, Cap) * (1 ± JitterFactor)
type Backoff struct {
	Base         time.Duration
	Cap          time.Duration
	JitterFactor float64

	// rnd returns a value in [0,1); tests replace it for determinism.
	rnd func() float64
}

// DefaultBackoff returns the production schedule: 5s, 10s, 20s ... capped at 10 minutes.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:         5 * time.Second,
		Cap:          10 * time.Minute,
		JitterFactor: 0.2,
	}
}

// Delay returns the backoff for an operation that has already been retried
// retryCount times.
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	base := b.Base
	if base <= 0 {
		base = 5 * time.Second
	}
	ceiling := b.Cap
	if ceiling <= 0 {
		ceiling = 10 * time.Minute
	}

	interval := math.Min(float64(base)*math.Pow(2, float64(retryCount)), float64(ceiling))

	if jitter := math.Min(math.Max(b.JitterFactor, 0), 1); jitter > 0 {
		rnd := b.rnd
		if rnd == nil {
			rnd = rand.Float64
		}
		interval *= 1 + (rnd()*2-1)*jitter
	}

	if interval < 0 {
		return 0
	}
	return time.Duration(interval)
}
