package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/prompt"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

// Analysis is the bug fixer's diagnosis.
type Analysis struct {
	Cause      string   `json:"cause"`
	Components []string `json:"components"`
	Impacts    string   `json:"impacts"`
}

// UnknownAnalysis is returned when no analysis reply could be parsed.
var UnknownAnalysis = Analysis{Cause: "Unknown", Components: []string{}, Impacts: "Unable to determine"}

// NoSolution is returned when no solution reply could be parsed.
const NoSolution = "I couldn't determine a solution for this error."

// Fix is the combined bug-fix result.
type Fix struct {
	Analysis  Analysis `json:"analysis"`
	Solution  string   `json:"solution"`
	FixedCode string   `json:"fixed_code"`
}

// Bug-fix steps passed to the template.
const (
	stepProposeSolution = "propose_solution"
	stepGenerateFix     = "generate_fixed_code"
)

// BugFixer diagnoses an error against code and rewrites the code. None of
// its steps fail on malformed model output; each has a fallback.
type BugFixer struct {
	client llm.Client
	opts   Options
}

// NewBugFixer builds the bug-fix stage.
func NewBugFixer(client llm.Client, opts Options) *BugFixer {
	return &BugFixer{client: client, opts: opts}
}

// Fix runs Analyze, ProposeSolution and GenerateFixedCode in order.
func (b *BugFixer) Fix(ctx context.Context, code, errText string) (Fix, error) {
	analysis, err := b.Analyze(ctx, code, errText)
	if err != nil {
		return Fix{}, err
	}
	solution, err := b.ProposeSolution(ctx, code, errText, analysis)
	if err != nil {
		return Fix{}, err
	}
	fixed, err := b.GenerateFixedCode(ctx, code, errText, solution)
	if err != nil {
		return Fix{}, err
	}
	return Fix{Analysis: analysis, Solution: solution, FixedCode: fixed}, nil
}

// Analyze returns the likely cause, the components involved, and the
// impact. Malformed replies fall back to UnknownAnalysis.
func (b *BugFixer) Analyze(ctx context.Context, code, errText string) (Analysis, error) {
	rendered, err := b.opts.prompts().Render(prompt.BugAnalysis, prompt.Vars{"code": code, "error": errText})
	if err != nil {
		return Analysis{}, err
	}
	return runWithFallback(ctx, b.opts, "bug_analysis", UnknownAnalysis, func(ctx context.Context) (Analysis, error) {
		reply, err := b.client.Infer(ctx, rendered)
		if err != nil {
			return Analysis{}, err
		}
		return ParseAnalysis(reply)
	})
}

// ProposeSolution asks for a fix description. Malformed replies fall back to
// NoSolution.
func (b *BugFixer) ProposeSolution(ctx context.Context, code, errText string, analysis Analysis) (string, error) {
	a, err := json.Marshal(analysis)
	if err != nil {
		return "", err
	}
	rendered, err := b.opts.prompts().Render(prompt.BugFixer, prompt.Vars{
		"code":     code,
		"error":    errText,
		"step":     stepProposeSolution,
		"analysis": string(a),
		"solution": "",
	})
	if err != nil {
		return "", err
	}
	return runWithFallback(ctx, b.opts, "bug_solution", NoSolution, func(ctx context.Context) (string, error) {
		reply, err := b.client.Infer(ctx, rendered)
		if err != nil {
			return "", err
		}
		fix, err := ParseFixReply(reply)
		if err != nil {
			return "", err
		}
		return fix["solution"], nil
	})
}

// GenerateFixedCode asks for the corrected code. It prefers the fixed_code
// field, then the first fenced block, then the raw reply, and finally the
// original code.
func (b *BugFixer) GenerateFixedCode(ctx context.Context, code, errText, solution string) (string, error) {
	rendered, err := b.opts.prompts().Render(prompt.BugFixer, prompt.Vars{
		"code":     code,
		"error":    errText,
		"step":     stepGenerateFix,
		"analysis": "",
		"solution": solution,
	})
	if err != nil {
		return "", err
	}
	return runWithFallback(ctx, b.opts, "bug_fixed_code", code, func(ctx context.Context) (string, error) {
		reply, err := b.client.Infer(ctx, rendered)
		if err != nil {
			return "", err
		}
		if fix, err := ParseFixReply(reply); err == nil {
			return fix["fixed_code"], nil
		}
		if block, ok := firstFencedBlock(reply); ok && block != "" {
			return block, nil
		}
		if raw := strings.TrimSpace(reply); raw != "" {
			return raw, nil
		}
		return "", stage.Malformed("empty fixed-code reply")
	})
}

// runWithFallback retries until the BugFixerAttempts budget is spent and then
// returns fallback. Provider failures use the same budget as malformed
// replies; only context cancellation is returned as an error.
func runWithFallback[T any](ctx context.Context, o Options, name string, fallback T, fn func(context.Context) (T, error)) (T, error) {
	res, err := stage.Run(ctx, stageOpts[T](o, name, BugFixerAttempts),
		func(ctx context.Context, _ int) (T, error) {
			v, err := fn(ctx)
			if err != nil && ctx.Err() == nil && !errors.Is(err, stage.ErrMalformed) {
				err = fmt.Errorf("%w: %w", stage.ErrMalformed, err)
			}
			return v, err
		})
	if err == nil {
		return res.Value, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fallback, ctxErr
	}
	o.logger().Warn("bug fixer step failed, using fallback", zap.String("step", name), zap.Error(err))
	return fallback, nil
}

// ParseAnalysis accepts a {cause, components, impacts} JSON object or three
// "Cause:", "Components:" and "Impacts:" lines.
func ParseAnalysis(reply string) (Analysis, error) {
	if obj, ok := decodeObject(reply); ok {
		if _, has := obj["cause"]; has {
			a := Analysis{
				Cause:      stringValue(obj["cause"]),
				Impacts:    stringValue(obj["impacts"]),
				Components: []string{},
			}
			switch c := obj["components"].(type) {
			case []any:
				for _, v := range c {
					if s := strings.TrimSpace(stringValue(v)); s != "" {
						a.Components = append(a.Components, s)
					}
				}
			case string:
				a.Components = splitList(c)
			}
			return a, nil
		}
	}

	var (
		a     = Analysis{Components: []string{}}
		found int
	)
	for _, raw := range strings.Split(reply, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.Trim(strings.TrimSpace(key), "*-#0123456789. "))
		val = strings.TrimSpace(val)
		switch key {
		case "cause":
			a.Cause = val
			found++
		case "components":
			a.Components = splitList(val)
			found++
		case "impacts", "impact":
			a.Impacts = val
			found++
		}
	}
	if found < 3 {
		return Analysis{}, stage.Malformed("analysis reply has %d of 3 fields", found)
	}
	return a, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseFixReply validates a solution or fixed-code reply: a JSON object with
// analysis, solution and fixed_code keys.
func ParseFixReply(reply string) (map[string]string, error) {
	obj, ok := decodeObject(reply)
	if !ok {
		return nil, stage.Malformed("bug fixer reply is not a JSON object")
	}
	out := make(map[string]string, 3)
	for _, key := range []string{"analysis", "solution", "fixed_code"} {
		v, ok := obj[key]
		if !ok {
			return nil, stage.Malformed("bug fixer reply missing %q", key)
		}
		out[key] = stringValue(v)
	}
	return out, nil
}
