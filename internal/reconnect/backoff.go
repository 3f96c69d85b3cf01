package reconnect

import (
	"math"
	"math/rand"
	"time"
)

type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter adds up to Jitter*delay of random extra wait. Zero keeps delays
	// deterministic.
	Jitter float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// Delay returns the wait before attempt n (1-based) following n-1
// consecutive failures: Initial * Multiplier^(n-1), capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if d > float64(b.Max) || math.IsInf(d, 0) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += rand.Float64() * b.Jitter * d
		if d > float64(b.Max) {
			d = float64(b.Max)
		}
	}
	return time.Duration(d)
}

func (b Backoff) normalized() Backoff {
	def := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	return b
}
