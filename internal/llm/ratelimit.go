package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock abstracts time so the limiter and backoff can be driven by tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SlidingWindow admits at most max calls in any rolling period. Callers over
// the bound block until the oldest call in the window ages out.
type SlidingWindow struct {
	mu     sync.Mutex
	max    int
	period time.Duration
	clock  Clock
	calls  []time.Time

	onAdmit func(time.Time) // test hook, called under mu
}

// NewSlidingWindow builds a limiter. A nil clock means SystemClock.
func NewSlidingWindow(max int, period time.Duration, clock Clock) *SlidingWindow {
	if max < 1 {
		max = 1
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &SlidingWindow{max: max, period: period, clock: clock}
}

// Wait blocks until a slot is free and claims it. It returns how long the
// caller was held back.
func (w *SlidingWindow) Wait(ctx context.Context) (time.Duration, error) {
	start := w.clock.Now()
	for {
		wait := w.reserve()
		if wait == 0 {
			return w.clock.Now().Sub(start), nil
		}
		if err := w.clock.Sleep(ctx, wait); err != nil {
			return w.clock.Now().Sub(start), fmt.Errorf("rate limiter wait: %w", err)
		}
	}
}

// reserve claims a slot and returns 0, or returns how long until the oldest
// call leaves the window.
func (w *SlidingWindow) reserve() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	kept := w.calls[:0]
	for _, t := range w.calls {
		if now.Sub(t) < w.period {
			kept = append(kept, t)
		}
	}
	w.calls = kept

	if len(w.calls) < w.max {
		w.calls = append(w.calls, now)
		if w.onAdmit != nil {
			w.onAdmit(now)
		}
		return 0
	}

	wait := w.calls[0].Add(w.period).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// InWindow reports how many calls currently count against the limit.
func (w *SlidingWindow) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	n := 0
	for _, t := range w.calls {
		if now.Sub(t) < w.period {
			n++
		}
	}
	return n
}
