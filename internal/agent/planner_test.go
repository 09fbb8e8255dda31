package agent

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

const samplePlan = `Project Name: TaskBoard

Your Reply to the Human Prompter: Sure, I'll build a task board
with a login page.

Current Focus: Authentication and the board view.

Plan:
- [ ] Step 1: Set up the Express server
  with a health route.
- [ ] Step 2: Add the login page.
- [ ] Step 4: Build the dashboard.
- [ ] Step two: continue the dashboard work

Summary: A small full-stack app.
` + "```"

func TestParsePlan(t *testing.T) {
	got := ParsePlan(samplePlan)
	want := Plan{
		Project: "TaskBoard",
		Reply:   "Sure, I'll build a task board with a login page.",
		Focus:   "Authentication and the board view.",
		Steps: []Step{
			{1, "Set up the Express server with a health route."},
			{2, "Add the login page."},
			{4, "Build the dashboard. - [ ] Step two: continue the dashboard work"},
		},
		Summary: "A small full-stack app.",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParsePlan mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePlan_StepNumbersStrictlyAscending(t *testing.T) {
	reply := "Plan:\n- [ ] Step 1: a\n- [ ] Step 3: b\n- [ ] Step 2: c\n- [ ] Step 3: d\n- [ ] Step 7: e\nSummary: s"
	got := ParsePlan(reply)

	nums := make([]int, 0, len(got.Steps))
	for _, s := range got.Steps {
		nums = append(nums, s.Number)
	}
	assert.Equal(t, []int{1, 3, 7}, nums, "gaps preserved, regressions folded")
	assert.Equal(t, "b - [ ] Step 2: c - [ ] Step 3: d", got.Steps[1].Text)
}

func TestParsePlan_LinesBeforeFirstStepIgnored(t *testing.T) {
	got := ParsePlan("Plan:\nSome preamble\n- [ ] Step 1: go\nSummary: done")
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "go", got.Steps[0].Text)
}

func TestMissingMarkers(t *testing.T) {
	assert.Empty(t, MissingMarkers(samplePlan))
	assert.Equal(t, []string{MarkerFocus, MarkerSummary}, MissingMarkers("Project Name: x\nYour Reply to the Human Prompter: y\nPlan:\n"))
}

func TestPlanner_RetriesOnMissingMarker(t *testing.T) {
	c := script("Project Name: x\nPlan:\n- [ ] Step 1: a", samplePlan)
	plan, raw, err := NewPlanner(c, Options{}).Run(context.Background(), "build a task board")
	require.NoError(t, err)
	assert.Equal(t, "TaskBoard", plan.Project)
	assert.Equal(t, samplePlan, raw)
	assert.Equal(t, 2, c.calls())
}

func TestPlanner_ExhaustionIsFatal(t *testing.T) {
	c := script("just some prose")
	_, _, err := NewPlanner(c, Options{}).Run(context.Background(), "x")
	require.ErrorIs(t, err, stage.ErrExhausted)
	assert.Equal(t, PlannerAttempts, c.calls())
}

func TestPlanExcerpt(t *testing.T) {
	got := PlanExcerpt(samplePlan)
	assert.True(t, len(got) > 0)
	assert.Contains(t, got, "- [ ] Step 1")
	assert.NotContains(t, got, "Summary")
	assert.Equal(t, "Plan", got[:4])

	assert.Equal(t, "no markers here", PlanExcerpt("no markers here"))
}
