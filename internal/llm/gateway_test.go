package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARIHARAN-KC/nexa/internal/observability"
)

// scriptedProvider returns errs in order, then "ok".
type scriptedProvider struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	params []Params
}

func (p *scriptedProvider) Name() string { return "Fake" }

func (p *scriptedProvider) Generate(_ context.Context, prompt string, params Params) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.params = append(p.params, params)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "ok: " + prompt, nil
}

func rateLimited() error {
	return fmt.Errorf("%w: 429 slow down", ErrRateLimited)
}

func TestGateway_RetriesRateLimitWithBackoff(t *testing.T) {
	clk := newFakeClock()
	p := &scriptedProvider{errs: []error{rateLimited(), rateLimited()}}
	g := NewGateway(p, Options{Clock: clk, MaxCalls: 100})

	out, err := g.For(AgentPlanner).Infer(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok: hi", out)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second}, clk.Sleeps())
}

func TestGateway_ReraisesAfterExhaustion(t *testing.T) {
	clk := newFakeClock()
	p := &scriptedProvider{errs: []error{rateLimited(), rateLimited(), rateLimited(), rateLimited(), rateLimited()}}
	g := NewGateway(p, Options{Clock: clk, MaxCalls: 100})

	_, err := g.For(AgentCoder).Infer(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 5, p.calls)
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second, 20 * time.Second}, clk.Sleeps())
}

func TestGateway_OtherErrorsPropagateImmediately(t *testing.T) {
	clk := newFakeClock()
	boom := errors.New("invalid api key")
	p := &scriptedProvider{errs: []error{boom}}
	g := NewGateway(p, Options{Clock: clk})

	_, err := g.For(AgentPlanner).Infer(context.Background(), "hi")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, clk.Sleeps())
}

func TestGateway_AppliesTokenBudgetPerAgent(t *testing.T) {
	p := &scriptedProvider{}
	g := NewGateway(p, Options{
		Clock:       newFakeClock(),
		MaxCalls:    100,
		TokenLimits: map[string]int{"Planner": 1500},
		Temperature: 0.5,
	})
	ctx := context.Background()

	for _, agent := range []string{AgentDecisionTaker, AgentPlanner, AgentCoder, "mystery"} {
		_, err := g.For(agent).Infer(ctx, "x")
		require.NoError(t, err)
	}

	got := make([]int, 0, len(p.params))
	for _, pr := range p.params {
		got = append(got, pr.MaxTokens)
		assert.Equal(t, float32(0.5), pr.Temperature)
	}
	assert.Equal(t, []int{512, 1500, 4096, 2048}, got)
}

func TestGateway_SharesLimiterAcrossAgents(t *testing.T) {
	clk := newFakeClock()
	g := NewGateway(&scriptedProvider{}, Options{Clock: clk, MaxCalls: 2, Period: time.Minute})
	ctx := context.Background()

	_, err := g.For(AgentPlanner).Infer(ctx, "a")
	require.NoError(t, err)
	_, err = g.For(AgentCoder).Infer(ctx, "b")
	require.NoError(t, err)
	_, err = g.For(AgentResearcher).Infer(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Minute}, clk.Sleeps())
}

func TestGateway_ObserverAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.New(reg)
	p := &scriptedProvider{errs: []error{rateLimited()}}
	g := NewGateway(p, Options{Clock: newFakeClock(), MaxCalls: 10, Metrics: m})

	var calls []Call
	g.SetObserver(func(_ context.Context, c Call) { calls = append(calls, c) })

	_, err := g.For(AgentCoder).Infer(context.Background(), "x")
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, "rate_limited", calls[0].Status)
	assert.Equal(t, "success", calls[1].Status)
	assert.Equal(t, 2, calls[1].Attempt)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("Fake", "coder", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("Fake", "coder", "rate_limited")))
}

func TestGateway_ConcurrentRuns(t *testing.T) {
	clk := newFakeClock()
	p := &scriptedProvider{}
	g := NewGateway(p, Options{Clock: clk, MaxCalls: 4, Period: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.For(AgentCoder).Infer(context.Background(), fmt.Sprint(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 12, p.calls)
}
