package llm

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances its own time whenever someone sleeps on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestSlidingWindow_ThirdCallBlocksForRemainder(t *testing.T) {
	clk := newFakeClock()
	w := NewSlidingWindow(2, 60*time.Second, clk)
	ctx := context.Background()

	waited, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)

	clk.Advance(10 * time.Second)
	waited, err = w.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)

	clk.Advance(5 * time.Second)
	waited, err = w.Wait(ctx)
	require.NoError(t, err)

	// First call was 15s ago, so the slot frees 45s from now.
	assert.Equal(t, 45*time.Second, waited)
	assert.Equal(t, []time.Duration{45 * time.Second}, clk.Sleeps())
	assert.Equal(t, 2, w.InWindow())
}

func TestSlidingWindow_AdmitsAfterPeriod(t *testing.T) {
	clk := newFakeClock()
	w := NewSlidingWindow(1, time.Minute, clk)
	ctx := context.Background()

	_, err := w.Wait(ctx)
	require.NoError(t, err)
	clk.Advance(time.Minute)

	waited, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)
	assert.Empty(t, clk.Sleeps())
}

func TestSlidingWindow_CancelledContext(t *testing.T) {
	clk := newFakeClock()
	w := NewSlidingWindow(1, time.Minute, clk)
	_, err := w.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSlidingWindow_NeverExceedsLimitAcrossGoroutines(t *testing.T) {
	const max = 3
	period := time.Minute
	clk := newFakeClock()
	w := NewSlidingWindow(max, period, clk)

	var mu sync.Mutex
	var admitted []time.Time
	w.onAdmit = func(ts time.Time) {
		mu.Lock()
		admitted = append(admitted, ts)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Wait(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, admitted, 20)
	sort.Slice(admitted, func(i, j int) bool { return admitted[i].Before(admitted[j]) })
	for i, start := range admitted {
		n := 0
		for _, ts := range admitted[i:] {
			if ts.Sub(start) < period {
				n++
			}
		}
		assert.LessOrEqualf(t, n, max, "window starting at admission %d holds %d calls", i, n)
	}
}

func TestBackoffDelays(t *testing.T) {
	b := DefaultBackoff
	want := []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second, 20 * time.Second, 20 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, b.Delay(i+1), "retry %d", i+1)
	}
}

func TestTokenLimits(t *testing.T) {
	limits := DefaultTokenLimits()
	assert.Equal(t, 512, limits.For("decision_taker"))
	assert.Equal(t, 4096, limits.For("Coder"))
	assert.Equal(t, 2048, limits.For("someone_else"))
	assert.NotContains(t, limits, "project_creator")
	assert.Len(t, limits, 6)
}
