// Package stage runs one pipeline stage's attempt loop and records the
// outcome of every attempt.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/observability"
)

var (
	// ErrMalformed marks model output that failed to parse or validate. The
	// runner retries it with a fresh inference.
	ErrMalformed = errors.New("malformed model output")

	// ErrExhausted is returned when every attempt produced malformed output.
	ErrExhausted = errors.New("attempts exhausted")
)

// Attempt outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFail     = "fail"
	OutcomeDegraded = "degraded"
)

// Record describes one attempt.
type Record struct {
	RunID    string        `json:"run_id"`
	Stage    string        `json:"stage"`
	Attempt  int           `json:"attempt"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Observer receives a Record after each attempt.
type Observer func(ctx context.Context, r Record)

// Opts configures Run.
type Opts[T any] struct {
	Stage    string
	Attempts int
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Observer Observer

	// AcceptLast, when set, decides whether the value of the final malformed
	// attempt is good enough to return instead of ErrExhausted.
	AcceptLast func(T) bool
}

// Result is what Run hands back alongside its error.
type Result[T any] struct {
	Value    T
	Attempts int
	Outcome  string
}

// Run calls fn until it succeeds, returns a non-malformed error, or the
// attempt budget runs out. fn errors wrapping ErrMalformed are retried; any
// other error is returned immediately.
func Run[T any](ctx context.Context, opts Opts[T], fn func(ctx context.Context, attempt int) (T, error)) (Result[T], error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("stage", opts.Stage))
	runID := RunID(ctx)

	var (
		res     Result[T]
		lastErr error
	)
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempts = attempt

		start := time.Now()
		v, err := fn(ctx, attempt)
		rec := Record{
			RunID:    runID,
			Stage:    opts.Stage,
			Attempt:  attempt,
			Duration: time.Since(start),
		}
		res.Value = v

		if err == nil {
			rec.Outcome = OutcomeSuccess
			res.Outcome = OutcomeSuccess
			opts.record(ctx, rec)
			return res, nil
		}

		rec.Error = err.Error()
		if !errors.Is(err, ErrMalformed) {
			rec.Outcome = OutcomeFail
			res.Outcome = OutcomeFail
			opts.record(ctx, rec)
			return res, fmt.Errorf("%s: %w", opts.Stage, err)
		}

		lastErr = err
		if attempt == opts.Attempts && opts.AcceptLast != nil && opts.AcceptLast(v) {
			rec.Outcome = OutcomeDegraded
			res.Outcome = OutcomeDegraded
			opts.record(ctx, rec)
			log.Warn("returning degraded result", zap.Int("attempts", attempt), zap.Error(err))
			return res, nil
		}

		rec.Outcome = OutcomeFail
		opts.record(ctx, rec)
		log.Info("attempt produced malformed output",
			zap.Int("attempt", attempt),
			zap.Int("of", opts.Attempts),
			zap.Error(err))
	}

	res.Outcome = OutcomeFail
	return res, fmt.Errorf("%s: %w after %d attempts: %w", opts.Stage, ErrExhausted, opts.Attempts, lastErr)
}

func (o Opts[T]) record(ctx context.Context, r Record) {
	if o.Metrics != nil {
		o.Metrics.StageAttemptsTotal.WithLabelValues(r.Stage, r.Outcome).Inc()
	}
	if o.Observer != nil {
		o.Observer(ctx, r)
	}
}

// Malformed wraps a parse or validation failure so Run retries it.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

type runIDKey struct{}

// WithRunID attaches a pipeline run ID to ctx; records carry it.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run ID stored by WithRunID, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
