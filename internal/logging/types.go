package logging

import "time"

// #region tick-entry
// TickEntry is a single row in the tick_log table.
type TickEntry struct {
	AgentID      string
	Tick         uint64
	Outcome      string // "ok" | "stage_failure" | "config_error"
	Stage        string
	Reason       string
	ActionJSON   string
	ClockPhase   float64
	TickDuration float64
	VersionID    string // checkpoint committed on this tick, if any
	CreatedAt    time.Time
}
// #endregion tick-entry

// #region outcome-count
// OutcomeCount is the number of logged ticks per outcome for one agent.
type OutcomeCount struct {
	Outcome string
	Count   int
}
// #endregion outcome-count
