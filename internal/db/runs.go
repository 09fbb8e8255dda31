package db

import (
	"context"
	"database/sql"
	"fmt"
)

// StageRun represents a row in the stage_runs table.
type StageRun struct {
	ID         int64
	RunID      string
	Stage      string
	Attempt    int
	Outcome    string
	DurationMs int64
	Error      string
	Timestamp  string
}

// LLMCall represents a row in the llm_calls table.
type LLMCall struct {
	ID         int64
	RunID      string
	Provider   string
	Agent      string
	Attempt    int
	Status     string
	DurationMs int64
	WaitedMs   int64
	Error      string
	Timestamp  string
}

// LogStageRun inserts one stage attempt.
func (d *DB) LogStageRun(ctx context.Context, r StageRun) error {
	_, err := d.exec(ctx,
		`INSERT INTO stage_runs (run_id, stage, attempt, outcome, duration_ms, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Stage, r.Attempt, r.Outcome, r.DurationMs, nullString(r.Error), d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("log stage run: %w", err)
	}
	return nil
}

// LogLLMCall inserts one provider round-trip.
func (d *DB) LogLLMCall(ctx context.Context, c LLMCall) error {
	_, err := d.exec(ctx,
		`INSERT INTO llm_calls (run_id, provider, agent, attempt, status, duration_ms, waited_ms, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RunID, c.Provider, c.Agent, c.Attempt, c.Status, c.DurationMs, c.WaitedMs, nullString(c.Error), d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("log llm call: %w", err)
	}
	return nil
}

// GetStageRuns returns the attempts recorded for one pipeline run in order.
func (d *DB) GetStageRuns(ctx context.Context, runID string) ([]StageRun, error) {
	rows, err := d.query(ctx,
		`SELECT id, run_id, stage, attempt, outcome, duration_ms, error, created_at
		 FROM stage_runs WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage runs: %w", err)
	}
	defer rows.Close()

	var runs []StageRun
	for rows.Next() {
		var r StageRun
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.Stage, &r.Attempt, &r.Outcome, &r.DurationMs, &errText, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
