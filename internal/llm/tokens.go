package llm

import "strings"

// Agent names used as token-table keys. Project assembly makes no model
// call and has no entry.
const (
	AgentDecisionTaker = "decision_taker"
	AgentPlanner       = "planner"
	AgentResearcher    = "researcher"
	AgentBugFixer      = "bug_fixer"
	AgentCoder         = "coder"
	AgentDefault       = "default"
)

// TokenLimits maps an agent name to its maximum output tokens.
type TokenLimits map[string]int

// DefaultTokenLimits is the built-in budget table.
func DefaultTokenLimits() TokenLimits {
	return TokenLimits{
		AgentDecisionTaker: 512,
		AgentPlanner:       1024,
		AgentResearcher:    1024,
		AgentBugFixer:      2048,
		AgentCoder:         4096,
		AgentDefault:       2048,
	}
}

// For returns the ceiling for agent, falling back to the "default" entry.
func (t TokenLimits) For(agent string) int {
	if v, ok := t[strings.ToLower(agent)]; ok {
		return v
	}
	if v, ok := t[AgentDefault]; ok {
		return v
	}
	return 2048
}
