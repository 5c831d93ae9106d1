package channel

import (
	"math"
	"time"
)

// Backoff computes reconnect delays with exponential growth.
// Formula: delay = min(initial * (multiplier ^ attempt), max)
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// SetDefaults sets default values for unset backoff fields
func (b *Backoff) SetDefaults() {
	if b.Initial == 0 {
		b.Initial = time.Second
	}
	if b.Max == 0 {
		b.Max = 30 * time.Second
	}
	if b.Multiplier == 0 {
		b.Multiplier = 2.0
	}
	if b.MaxAttempts == 0 {
		b.MaxAttempts = 5
	}
}

// Delay returns the wait before reconnect attempt n (zero-based)
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt n exceeds the retry budget
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}
