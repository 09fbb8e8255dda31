package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/prompt"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

// Decision functions.
const (
	FunctionConversation = "ordinary_conversation"
	FunctionProject      = "coding_project"
)

// Decision classifies a request.
type Decision struct {
	Function string         `json:"function"`
	Args     map[string]any `json:"args"`
	Reply    string         `json:"reply"`
}

// DecisionTaker decides between conversation and project generation.
type DecisionTaker struct {
	client llm.Client
	opts   Options
}

// NewDecisionTaker builds the decision stage.
func NewDecisionTaker(client llm.Client, opts Options) *DecisionTaker {
	return &DecisionTaker{client: client, opts: opts}
}

// Run returns every decision in the model's reply. Callers act on the first.
func (d *DecisionTaker) Run(ctx context.Context, userPrompt string) ([]Decision, error) {
	rendered, err := d.opts.prompts().Render(prompt.Decision, prompt.Vars{"prompt": userPrompt})
	if err != nil {
		return nil, err
	}

	res, err := stage.Run(ctx, stageOpts[[]Decision](d.opts, "decision", DecisionAttempts),
		func(ctx context.Context, attempt int) ([]Decision, error) {
			reply, err := d.client.Infer(ctx, rendered)
			if err != nil {
				return nil, err
			}
			decisions, err := ParseDecisions(reply)
			if err != nil {
				d.opts.logger().Debug("invalid decision reply", zap.Int("attempt", attempt), zap.Error(err))
			}
			return decisions, err
		})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// ParseDecisions validates a decision reply: a non-empty JSON array whose
// items all carry function, args and reply, with args an object.
func ParseDecisions(reply string) ([]Decision, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(reply)), &items); err != nil {
		return nil, stage.Malformed("decision reply is not a JSON array of objects: %v", err)
	}
	if len(items) == 0 {
		return nil, stage.Malformed("decision reply is an empty array")
	}

	out := make([]Decision, 0, len(items))
	for i, item := range items {
		for _, key := range []string{"function", "args", "reply"} {
			if _, ok := item[key]; !ok {
				return nil, stage.Malformed("decision %d missing key %q", i, key)
			}
		}

		var args map[string]any
		if err := json.Unmarshal(item["args"], &args); err != nil || args == nil {
			return nil, stage.Malformed("decision %d args must be an object", i)
		}

		var fn, text any
		if err := json.Unmarshal(item["function"], &fn); err != nil {
			return nil, stage.Malformed("decision %d function: %v", i, err)
		}
		if err := json.Unmarshal(item["reply"], &text); err != nil {
			return nil, stage.Malformed("decision %d reply: %v", i, err)
		}

		out = append(out, Decision{
			Function: stringValue(fn),
			Args:     args,
			Reply:    stringValue(text),
		})
	}
	return out, nil
}

// String is used in logs.
func (d Decision) String() string {
	return fmt.Sprintf("%s(%d args)", d.Function, len(d.Args))
}
