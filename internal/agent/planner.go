package agent

import (
	"context"
	"strconv"
	"strings"

	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/prompt"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

// Step is one numbered plan step. Numbers are kept as written.
type Step struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Plan is the parsed planner reply.
type Plan struct {
	Project string `json:"project"`
	Reply   string `json:"reply"`
	Focus   string `json:"focus"`
	Steps   []Step `json:"steps"`
	Summary string `json:"summary"`
}

// Planner produces the project plan.
type Planner struct {
	client llm.Client
	opts   Options
}

// NewPlanner builds the planning stage.
func NewPlanner(client llm.Client, opts Options) *Planner {
	return &Planner{client: client, opts: opts}
}

// Run returns the parsed plan and the raw reply it came from.
func (p *Planner) Run(ctx context.Context, userPrompt string) (Plan, string, error) {
	rendered, err := p.opts.prompts().Render(prompt.Planner, prompt.Vars{"prompt": userPrompt})
	if err != nil {
		return Plan{}, "", err
	}

	res, err := stage.Run(ctx, stageOpts[string](p.opts, "planner", PlannerAttempts),
		func(ctx context.Context, _ int) (string, error) {
			reply, err := p.client.Infer(ctx, rendered)
			if err != nil {
				return "", err
			}
			if missing := MissingMarkers(reply); len(missing) > 0 {
				return reply, stage.Malformed("planner reply missing %s", strings.Join(missing, ", "))
			}
			return reply, nil
		})
	if err != nil {
		return Plan{}, "", err
	}
	return ParsePlan(res.Value), res.Value, nil
}

// MissingMarkers lists the section markers absent from reply.
func MissingMarkers(reply string) []string {
	var missing []string
	for _, m := range PlannerMarkers {
		if !strings.Contains(reply, m) {
			missing = append(missing, m)
		}
	}
	return missing
}

type planSection int

const (
	sectionNone planSection = iota
	sectionProject
	sectionReply
	sectionFocus
	sectionPlan
	sectionSummary
)

// ParsePlan walks the reply line by line. Marker lines switch the current
// section; other lines continue it. Inside the plan section a step line opens
// a new step and later lines extend it. A step whose number does not exceed
// the previous one is folded into the open step, so numbers stay strictly
// ascending.
func ParsePlan(reply string) Plan {
	var (
		plan    Plan
		section = sectionNone
		answer  strings.Builder
		focus   strings.Builder
		summary strings.Builder
		step    = -1
	)

	appendTo := func(b *strings.Builder, s string) {
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	extendStep := func(s string) {
		if step < 0 || s == "" {
			return
		}
		if plan.Steps[step].Text == "" {
			plan.Steps[step].Text = s
			return
		}
		plan.Steps[step].Text += " " + s
	}

	for _, raw := range strings.Split(reply, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, MarkerProject):
			section = sectionProject
			plan.Project = afterMarker(line, MarkerProject)
		case strings.HasPrefix(line, MarkerReply):
			section = sectionReply
			appendTo(&answer, afterMarker(line, MarkerReply))
		case strings.HasPrefix(line, MarkerFocus):
			section = sectionFocus
			appendTo(&focus, afterMarker(line, MarkerFocus))
		case strings.HasPrefix(line, MarkerPlan):
			section = sectionPlan
		case strings.HasPrefix(line, MarkerSummary):
			section = sectionSummary
			appendTo(&summary, strings.ReplaceAll(afterMarker(line, MarkerSummary), Fence, ""))
		case line == "":
			continue
		case section == sectionReply:
			appendTo(&answer, line)
		case section == sectionFocus:
			appendTo(&focus, line)
		case section == sectionSummary:
			appendTo(&summary, strings.TrimSpace(strings.ReplaceAll(line, Fence, "")))
		case section == sectionPlan:
			n, text, ok := parseStepLine(line)
			if ok && (step < 0 || n > plan.Steps[step].Number) {
				plan.Steps = append(plan.Steps, Step{Number: n, Text: text})
				step = len(plan.Steps) - 1
				continue
			}
			extendStep(line)
		}
	}

	plan.Project = strings.TrimSpace(plan.Project)
	plan.Reply = answer.String()
	plan.Focus = focus.String()
	plan.Summary = summary.String()
	return plan
}

// parseStepLine reads "- [ ] Step N: text".
func parseStepLine(line string) (int, string, bool) {
	if !strings.HasPrefix(line, stepPrefix) {
		return 0, "", false
	}
	rest := strings.TrimPrefix(line, stepPrefix)
	num, text, found := strings.Cut(rest, ":")
	if !found {
		return 0, "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n, strings.TrimSpace(text), true
}

func afterMarker(line, marker string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, marker))
}

// PlanExcerpt returns the reply text from the first "Plan" to the last
// "Summary". It falls back to the whole reply when the bounds are missing or
// out of order.
func PlanExcerpt(reply string) string {
	start := strings.Index(reply, excerptStart)
	end := strings.LastIndex(reply, excerptEnd)
	if start < 0 || end < 0 || end < start {
		return reply
	}
	return reply[start:end]
}
