package link

import (
	"math"
	"math/rand"
	"time"
)

// backoff spaces out autoconnect attempts exponentially with ±25% jitter
type backoff struct {
	initial    time.Duration
	multiplier float64
	max        time.Duration
	jitter     bool
	attempt    int
}

func newBackoff() *backoff {
	return &backoff{
		initial:    ReconnectDelay,
		multiplier: 2,
		max:        MaxReconnectDelay,
		jitter:     true,
	}
}

// next returns how long to wait before the next attempt
func (b *backoff) next() time.Duration {
	f := float64(b.initial) * math.Pow(b.multiplier, float64(b.attempt))
	if b.max > 0 && f > float64(b.max) {
		f = float64(b.max)
	}
	d := time.Duration(f)
	if b.jitter {
		spread := float64(d) * 0.25
		d = time.Duration(float64(d) + (rand.Float64()-0.5)*2*spread)
		if d < 0 {
			d = 0
		}
	}
	b.attempt++
	return d
}

func (b *backoff) reset() {
	b.attempt = 0
}
