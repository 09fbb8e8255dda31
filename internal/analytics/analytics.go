// Package analytics reports on recorded stage attempts and provider calls.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

// StageStats holds attempt and duration stats for a stage.
type StageStats struct {
	Stage       string  `json:"stage"`
	Attempts    int     `json:"attempts"`
	Runs        int     `json:"runs"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	Degraded    int     `json:"degraded"`
	FailureRate float64 `json:"failure_rate_pct"`
	AvgMs       float64 `json:"avg_ms"`
	P50Ms       float64 `json:"p50_ms"`
	P95Ms       float64 `json:"p95_ms"`
}

// QueryStageStats returns attempt counts, failure rate and duration
// percentiles per stage. since, when set, is compared against created_at
// ("2006-01-02 15:04:05", UTC).
func QueryStageStats(ctx context.Context, database DB, since string) ([]StageStats, error) {
	query := `SELECT run_id, stage, outcome, duration_ms FROM stage_runs`
	var args []any
	if since != "" {
		query += ` WHERE created_at >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().QueryContext(ctx, database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query stage stats: %w", err)
	}
	defer rows.Close()

	type acc struct {
		stats     StageStats
		runs      map[string]bool
		durations []float64
	}
	byStage := map[string]*acc{}
	for rows.Next() {
		var runID, stage, outcome string
		var ms int64
		if err := rows.Scan(&runID, &stage, &outcome, &ms); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		a, ok := byStage[stage]
		if !ok {
			a = &acc{stats: StageStats{Stage: stage}, runs: map[string]bool{}}
			byStage[stage] = a
		}
		a.stats.Attempts++
		a.runs[runID] = true
		switch outcome {
		case "success":
			a.stats.Successes++
		case "degraded":
			a.stats.Degraded++
		default:
			a.stats.Failures++
		}
		a.durations = append(a.durations, float64(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]StageStats, 0, len(byStage))
	for _, a := range byStage {
		sort.Float64s(a.durations)
		s := a.stats
		s.Runs = len(a.runs)
		s.FailureRate = pct(s.Failures, s.Attempts)
		s.AvgMs = avg(a.durations)
		s.P50Ms = percentile(a.durations, 50)
		s.P95Ms = percentile(a.durations, 95)
		results = append(results, s)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// LLMStats holds provider call stats per provider and agent.
type LLMStats struct {
	Provider    string  `json:"provider"`
	Agent       string  `json:"agent"`
	Calls       int     `json:"calls"`
	RateLimited int     `json:"rate_limited"`
	Errors      int     `json:"errors"`
	ErrorRate   float64 `json:"error_rate_pct"`
	AvgMs       float64 `json:"avg_ms"`
	P95Ms       float64 `json:"p95_ms"`
	AvgWaitMs   float64 `json:"avg_wait_ms"`
}

// QueryLLMStats returns call counts, latency and limiter wait per provider
// and agent.
func QueryLLMStats(ctx context.Context, database DB, since string) ([]LLMStats, error) {
	query := `SELECT provider, agent, status, duration_ms, waited_ms FROM llm_calls`
	var args []any
	if since != "" {
		query += ` WHERE created_at >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().QueryContext(ctx, database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query llm stats: %w", err)
	}
	defer rows.Close()

	type key struct{ provider, agent string }
	type acc struct {
		stats     LLMStats
		durations []float64
		waits     []float64
	}
	byKey := map[key]*acc{}
	for rows.Next() {
		var provider, agent, status string
		var ms, waited int64
		if err := rows.Scan(&provider, &agent, &status, &ms, &waited); err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		k := key{provider, agent}
		a, ok := byKey[k]
		if !ok {
			a = &acc{stats: LLMStats{Provider: provider, Agent: agent}}
			byKey[k] = a
		}
		a.stats.Calls++
		switch status {
		case "rate_limited":
			a.stats.RateLimited++
		case "error":
			a.stats.Errors++
		}
		a.durations = append(a.durations, float64(ms))
		a.waits = append(a.waits, float64(waited))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]LLMStats, 0, len(byKey))
	for _, a := range byKey {
		sort.Float64s(a.durations)
		s := a.stats
		s.ErrorRate = pct(s.Errors, s.Calls)
		s.AvgMs = avg(a.durations)
		s.P95Ms = percentile(a.durations, 95)
		s.AvgWaitMs = avg(a.waits)
		results = append(results, s)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Provider != results[j].Provider {
			return results[i].Provider < results[j].Provider
		}
		return results[i].Agent < results[j].Agent
	})
	return results, nil
}

// RunEvent is one entry in a run's timeline.
type RunEvent struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Stage     string `json:"stage"`
	Attempt   int    `json:"attempt"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
}

// QueryRunDetail returns the stage attempts and provider calls of one run,
// oldest first.
func QueryRunDetail(ctx context.Context, database DB, runID string) ([]RunEvent, error) {
	var results []RunEvent

	srRows, err := database.Conn().QueryContext(ctx, database.Rebind(
		`SELECT created_at, stage, attempt, outcome, duration_ms, error
		 FROM stage_runs WHERE run_id = ? ORDER BY created_at, id`),
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer srRows.Close()

	for srRows.Next() {
		var e RunEvent
		var ms int64
		var errText sql.NullString
		if err := srRows.Scan(&e.Timestamp, &e.Stage, &e.Attempt, &e.Outcome, &ms, &errText); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		e.Type = "stage"
		e.Detail = fmt.Sprintf("%dms", ms)
		if errText.Valid && errText.String != "" {
			e.Detail += ": " + errText.String
		}
		results = append(results, e)
	}
	if err := srRows.Err(); err != nil {
		return nil, err
	}
	srRows.Close()

	lcRows, err := database.Conn().QueryContext(ctx, database.Rebind(
		`SELECT created_at, provider, agent, attempt, status, duration_ms, waited_ms, error
		 FROM llm_calls WHERE run_id = ? ORDER BY created_at, id`),
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query llm calls: %w", err)
	}
	defer lcRows.Close()

	for lcRows.Next() {
		var e RunEvent
		var provider string
		var ms, waited int64
		var errText sql.NullString
		if err := lcRows.Scan(&e.Timestamp, &provider, &e.Stage, &e.Attempt, &e.Outcome, &ms, &waited, &errText); err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		e.Type = "llm"
		e.Detail = fmt.Sprintf("%s %dms (waited %dms)", provider, ms, waited)
		if errText.Valid && errText.String != "" {
			e.Detail += ": " + errText.String
		}
		results = append(results, e)
	}
	if err := lcRows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp < results[j].Timestamp
	})
	return results, nil
}

// Report bundles every analytics view.
type Report struct {
	Since  string       `json:"since,omitempty"`
	Stages []StageStats `json:"stages"`
	LLM    []LLMStats   `json:"llm"`
}

// BuildReport runs the stage and provider queries.
func BuildReport(ctx context.Context, database DB, since string) (*Report, error) {
	stages, err := QueryStageStats(ctx, database, since)
	if err != nil {
		return nil, err
	}
	calls, err := QueryLLMStats(ctx, database, since)
	if err != nil {
		return nil, err
	}
	return &Report{Since: since, Stages: stages, LLM: calls}, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
