package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/observability"
)

// Options configures a Gateway. Zero values fall back to defaults.
type Options struct {
	MaxCalls    int
	Period      time.Duration
	Backoff     Backoff
	TokenLimits map[string]int // overrides merged onto DefaultTokenLimits
	Temperature float32
	Clock       Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Gateway is process-wide shared state: one provider, one limiter. It is safe
// for concurrent use; the limiter is the only mutable part.
type Gateway struct {
	provider    Provider
	limiter     *SlidingWindow
	backoff     Backoff
	limits      TokenLimits
	temperature float32
	clock       Clock
	logger      *zap.Logger
	metrics     *observability.Metrics
	observer    func(context.Context, Call)
}

// NewGateway wraps provider with rate limiting, backoff and token budgeting.
func NewGateway(provider Provider, opts Options) *Gateway {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.MaxCalls == 0 {
		opts.MaxCalls = 10
	}
	if opts.Period == 0 {
		opts.Period = time.Minute
	}
	if opts.Backoff.Attempts == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	limits := DefaultTokenLimits()
	for k, v := range opts.TokenLimits {
		limits[strings.ToLower(k)] = v
	}

	return &Gateway{
		provider:    provider,
		limiter:     NewSlidingWindow(opts.MaxCalls, opts.Period, opts.Clock),
		backoff:     opts.Backoff,
		limits:      limits,
		temperature: opts.Temperature,
		clock:       opts.Clock,
		logger:      opts.Logger.With(zap.String("provider", provider.Name())),
		metrics:     opts.Metrics,
	}
}

// SetObserver registers a callback invoked after every provider round-trip.
func (g *Gateway) SetObserver(fn func(context.Context, Call)) {
	g.observer = fn
}

// Provider returns the wrapped provider's name.
func (g *Gateway) Provider() string {
	return g.provider.Name()
}

// Limiter exposes the shared sliding window.
func (g *Gateway) Limiter() *SlidingWindow {
	return g.limiter
}

// For returns a client whose calls are budgeted as agent.
func (g *Gateway) For(agent string) Client {
	return &agentClient{g: g, agent: strings.ToLower(agent)}
}

type agentClient struct {
	g     *Gateway
	agent string
}

func (c *agentClient) Infer(ctx context.Context, prompt string) (string, error) {
	return c.g.infer(ctx, c.agent, prompt)
}

func (g *Gateway) infer(ctx context.Context, agent, prompt string) (string, error) {
	params := Params{MaxTokens: g.limits.For(agent), Temperature: g.temperature}
	name := g.provider.Name()

	var lastErr error
	for attempt := 1; attempt <= g.backoff.Attempts; attempt++ {
		waited, err := g.limiter.Wait(ctx)
		if g.metrics != nil {
			g.metrics.RateLimitWaitSeconds.Observe(waited.Seconds())
		}
		if err != nil {
			return "", err
		}

		start := g.clock.Now()
		out, err := g.provider.Generate(ctx, prompt, params)
		call := Call{
			Provider: name,
			Agent:    agent,
			Attempt:  attempt,
			Duration: g.clock.Now().Sub(start),
			Waited:   waited,
			Err:      err,
		}
		switch {
		case err == nil:
			call.Status = "success"
		case errors.Is(err, ErrRateLimited):
			call.Status = "rate_limited"
		default:
			call.Status = "error"
		}
		g.record(ctx, call)

		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return "", fmt.Errorf("%s inference: %w", name, err)
		}

		lastErr = err
		if attempt == g.backoff.Attempts {
			break
		}
		delay := g.backoff.Delay(attempt)
		g.logger.Warn("provider rate limited, backing off",
			zap.String("agent", agent),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		if err := g.clock.Sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("%s inference: backoff: %w", name, err)
		}
	}
	return "", fmt.Errorf("%s inference: gave up after %d attempts: %w", name, g.backoff.Attempts, lastErr)
}

func (g *Gateway) record(ctx context.Context, c Call) {
	if g.metrics != nil {
		g.metrics.LLMRequestsTotal.WithLabelValues(c.Provider, c.Agent, c.Status).Inc()
		g.metrics.LLMRequestDuration.WithLabelValues(c.Provider, c.Agent).Observe(c.Duration.Seconds())
	}
	if g.observer != nil {
		g.observer(ctx, c)
	}
	g.logger.Debug("provider call",
		zap.String("agent", c.Agent),
		zap.Int("attempt", c.Attempt),
		zap.String("status", c.Status),
		zap.Duration("duration", c.Duration))
}
