package llm

import (
	"math"
	"time"
)

// Backoff is the retry schedule for rate-limit errors: Base * Multiplier^(n-1),
// capped at Max, for at most Attempts calls in total.
type Backoff struct {
	Attempts   int
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff is 5 attempts waiting 4s, 8s, 16s, 20s between them.
var DefaultBackoff = Backoff{
	Attempts:   5,
	Base:       4 * time.Second,
	Multiplier: 2,
	Max:        20 * time.Second,
}

// Delay returns the wait before retry number n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(n-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
