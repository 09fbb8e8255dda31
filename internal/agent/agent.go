// Package agent holds the LLM-backed pipeline stages. Each stage renders a
// prompt, calls its Gateway client, and coerces the free-form reply into a
// validated record, retrying through the stage runner when the reply is
// malformed.
package agent

import (
	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/observability"
	"github.com/ARIHARAN-KC/nexa/internal/prompt"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

// Attempt budgets per stage.
const (
	DecisionAttempts   = 5
	PlannerAttempts    = 3
	ResearcherAttempts = 3
	CoderAttempts      = 3
	BugFixerAttempts   = 3
)

// Options carries the collaborators every stage shares. The zero value is
// usable: built-in prompts, no logging, no metrics.
type Options struct {
	Prompts  *prompt.Library
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Observer stage.Observer
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) prompts() *prompt.Library {
	if o.Prompts == nil {
		return prompt.NewLibrary("")
	}
	return o.Prompts
}

func stageOpts[T any](o Options, name string, attempts int) stage.Opts[T] {
	return stage.Opts[T]{
		Stage:    name,
		Attempts: attempts,
		Logger:   o.logger(),
		Metrics:  o.Metrics,
		Observer: o.Observer,
	}
}
