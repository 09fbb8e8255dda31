package analytics

import (
	"context"

	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/db"
	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/logging"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

// Sink persists attempt records.
type Sink interface {
	LogStageRun(ctx context.Context, r db.StageRun) error
	LogLLMCall(ctx context.Context, c db.LLMCall) error
}

// Recorder turns stage and gateway observations into rows. Write failures
// are logged and never reach the pipeline.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	logger = logging.OrNop(logger)
	return &Recorder{sink: sink, logger: logger}
}

// StageObserver records every stage attempt.
func (r *Recorder) StageObserver() stage.Observer {
	return func(ctx context.Context, rec stage.Record) {
		err := r.sink.LogStageRun(context.WithoutCancel(ctx), db.StageRun{
			RunID:      rec.RunID,
			Stage:      rec.Stage,
			Attempt:    rec.Attempt,
			Outcome:    rec.Outcome,
			DurationMs: rec.Duration.Milliseconds(),
			Error:      rec.Error,
		})
		if err != nil {
			r.logger.Warn("record stage attempt failed", zap.String("stage", rec.Stage), zap.Error(err))
		}
	}
}

// LLMObserver records every provider call. The run ID comes from ctx.
func (r *Recorder) LLMObserver() func(context.Context, llm.Call) {
	return func(ctx context.Context, c llm.Call) {
		call := db.LLMCall{
			RunID:      stage.RunID(ctx),
			Provider:   c.Provider,
			Agent:      c.Agent,
			Attempt:    c.Attempt,
			Status:     c.Status,
			DurationMs: c.Duration.Milliseconds(),
			WaitedMs:   c.Waited.Milliseconds(),
		}
		if c.Err != nil {
			call.Error = c.Err.Error()
		}
		if err := r.sink.LogLLMCall(context.WithoutCancel(ctx), call); err != nil {
			r.logger.Warn("record provider call failed", zap.String("agent", c.Agent), zap.Error(err))
		}
	}
}
