package agent

import "regexp"

// Planner section markers. A reply missing any of them is malformed.
const (
	MarkerProject = "Project Name:"
	MarkerReply   = "Your Reply to the Human Prompter:"
	MarkerFocus   = "Current Focus:"
	MarkerPlan    = "Plan:"
	MarkerSummary = "Summary:"
)

// PlannerMarkers lists the required markers in document order.
var PlannerMarkers = []string{MarkerProject, MarkerReply, MarkerFocus, MarkerPlan, MarkerSummary}

// Step lines look like "- [ ] Step 3: wire the routes".
const stepPrefix = "- [ ] Step"

// Fence is the code-fence token shared by every parser.
const Fence = "```"

// Plan excerpt bounds: downstream stages see the raw reply from the first
// "Plan" to the last "Summary".
const (
	excerptStart = "Plan"
	excerptEnd   = "Summary"
)

// filenameRe matches a coder file marker on a trimmed line.
var filenameRe = regexp.MustCompile(`(?i)^(?:file|filename):\s*(.+)`)

// firstFenceRe captures the body of the first fenced block, skipping an
// optional language tag on the opening line.
var firstFenceRe = regexp.MustCompile("(?s)```(?:[\\w+#.-]*\\n)?(.*?)```")
