// Package llm is the single synchronized entry point for outbound model
// calls. A Gateway wraps one provider with a process-wide sliding-window rate
// limiter, exponential backoff on provider rate-limit errors, and a per-agent
// output token ceiling.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited marks a provider-reported rate-limit error. Only errors that
// match it with errors.Is are retried by the Gateway.
var ErrRateLimited = errors.New("provider rate limit")

// Client is what a stage sees: one agent's view of the Gateway.
type Client interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// Router hands out agent-scoped clients. Gateway implements it.
type Router interface {
	For(agent string) Client
}

// Params are the generation settings passed to a provider on each call.
type Params struct {
	MaxTokens   int
	Temperature float32
}

// Provider is one text-generation backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

// Call describes one provider round-trip, reported to the gateway observer.
type Call struct {
	Provider string
	Agent    string
	Attempt  int
	Status   string // "success", "rate_limited", "error"
	Duration time.Duration
	Waited   time.Duration
	Err      error
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Infer calls f.
func (f ClientFunc) Infer(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
