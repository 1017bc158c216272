package notifier

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays with jitter.
type Backoff struct {
	Initial    time.Duration // Initial delay (default: 1s)
	Max        time.Duration // Maximum delay (default: 30s)
	Multiplier float64       // Multiplier per attempt (default: 2.0)
	Jitter     float64       // Jitter factor 0-1 (default: 0.1 = 10%)
}

// DefaultBackoff returns a Backoff with sensible defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    1 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Delay returns the backoff duration for a zero-based attempt number.
func (b Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))

	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	// Apply jitter: delay * (1 + random(-jitter, +jitter))
	if b.Jitter > 0 {
		jitterRange := delay * b.Jitter
		delay = delay + (rand.Float64()*2-1)*jitterRange
	}

	if delay < 0 {
		delay = float64(b.Initial)
	}

	return time.Duration(delay)
}
