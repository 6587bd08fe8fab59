package syncqueue

// WithRand replaces the jitter source so tests get deterministic delays.
func (b Backoff) WithRand(rnd func() float64) Backoff {
	b.rnd = rnd
	return b
}
