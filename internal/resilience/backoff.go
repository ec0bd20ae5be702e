package resilience

import (
	"math/rand/v2"
	"time"
)

// Backoff computes jittered exponential reconnect delays. The zero value is
// not usable; construct with the fields set.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Factor multiplies the delay per attempt. Values below 1 are treated
	// as 2.
	Factor float64

	// Max caps the delay. Zero means no cap.
	Max time.Duration

	// Jitter is the fraction of the delay randomised, in [0, 1]. 0.2 turns
	// a 1s delay into a uniform pick from [0.8s, 1.2s].
	Jitter float64
}

// Delay returns the wait before retry number attempt, counted from 0.
func (b Backoff) Delay(attempt int) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}

	d := float64(b.Base)
	for i := 0; i < attempt; i++ {
		d *= factor
		if b.Max > 0 && d >= float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}

	if b.Jitter > 0 {
		// Uniform in [d*(1-jitter), d*(1+jitter)].
		d *= 1 + b.Jitter*(2*rand.Float64()-1)
	}
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}
