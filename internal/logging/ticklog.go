package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-tick
// LogTick writes one entry to the tick_log table.
func LogTick(db *sql.DB, entry TickEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO tick_log (agent_id, tick, outcome, stage, reason, action_json, clock_phase, tick_duration, version_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.AgentID,
		int64(entry.Tick),
		entry.Outcome,
		nullIfEmpty(entry.Stage),
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.ActionJSON),
		entry.ClockPhase,
		entry.TickDuration,
		nullIfEmpty(entry.VersionID),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log tick: %w", err)
	}
	return nil
}
// #endregion log-tick

// #region list-ticks
// ListTicks returns the most recent entries for an agent, newest first.
func ListTicks(db *sql.DB, agentID string, limit int) ([]TickEntry, error) {
	rows, err := db.Query(
		`SELECT agent_id, tick, outcome, stage, reason, action_json, clock_phase, tick_duration, version_id, created_at
		 FROM tick_log WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ticks: %w", err)
	}
	defer rows.Close()

	var entries []TickEntry
	for rows.Next() {
		var e TickEntry
		var tick int64
		var stage, reason, action, version sql.NullString
		var createdStr string
		if err := rows.Scan(&e.AgentID, &tick, &e.Outcome, &stage, &reason, &action,
			&e.ClockPhase, &e.TickDuration, &version, &createdStr); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		e.Tick = uint64(tick)
		e.Stage = stage.String
		e.Reason = reason.String
		e.ActionJSON = action.String
		e.VersionID = version.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
// #endregion list-ticks

// #region count-outcomes
// CountOutcomes tallies logged ticks per outcome for an agent.
func CountOutcomes(db *sql.DB, agentID string) ([]OutcomeCount, error) {
	rows, err := db.Query(
		`SELECT outcome, COUNT(*) FROM tick_log WHERE agent_id = ? GROUP BY outcome ORDER BY outcome`, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	var counts []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
// #endregion count-outcomes

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
