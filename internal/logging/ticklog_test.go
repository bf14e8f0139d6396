package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE tick_log (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id      TEXT NOT NULL,
		tick          INTEGER NOT NULL,
		outcome       TEXT NOT NULL,
		stage         TEXT,
		reason        TEXT,
		action_json   TEXT,
		clock_phase   REAL NOT NULL,
		tick_duration REAL NOT NULL,
		version_id    TEXT,
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-tick-tests
func TestLogTick_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := TickEntry{
		AgentID:      "agent-1",
		Tick:         7,
		Outcome:      "ok",
		ActionJSON:   "[0,2]",
		ClockPhase:   0.25,
		TickDuration: 1.5,
		VersionID:    "v1",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogTick(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := ListTicks(db, "agent-1", 10)
	if err != nil {
		t.Fatalf("ListTicks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Tick != 7 || got[0].ActionJSON != "[0,2]" || got[0].VersionID != "v1" || got[0].ClockPhase != 0.25 {
		t.Errorf("unexpected entry %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", entry.CreatedAt, got[0].CreatedAt)
	}
}

func TestLogTick_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogTick(db, TickEntry{AgentID: "a", Tick: 1, Outcome: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM tick_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogTick_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogTick(db, TickEntry{AgentID: "a", Tick: 1, Outcome: "config_error"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stage, reason, action, version sql.NullString
	db.QueryRow("SELECT stage, reason, action_json, version_id FROM tick_log").Scan(&stage, &reason, &action, &version)
	if stage.Valid || reason.Valid || action.Valid || version.Valid {
		t.Errorf("expected NULLs for empty fields, got %v %v %v %v", stage, reason, action, version)
	}
}

func TestLogTick_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogTick(db, TickEntry{AgentID: "a", Outcome: "ok"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-tick-tests

// #region list-tests
func TestListTicks_NewestFirstAndFiltered(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for i := 1; i <= 5; i++ {
		LogTick(db, TickEntry{AgentID: "a", Tick: uint64(i), Outcome: "ok"})
	}
	LogTick(db, TickEntry{AgentID: "b", Tick: 1, Outcome: "ok"})

	got, err := ListTicks(db, "a", 3)
	if err != nil {
		t.Fatalf("ListTicks: %v", err)
	}
	if len(got) != 3 || got[0].Tick != 5 || got[2].Tick != 3 {
		t.Fatalf("unexpected ticks %+v", got)
	}
}

func TestCountOutcomes(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	LogTick(db, TickEntry{AgentID: "a", Tick: 1, Outcome: "ok"})
	LogTick(db, TickEntry{AgentID: "a", Tick: 2, Outcome: "stage_failure", Stage: "encoder", Reason: "boom"})
	LogTick(db, TickEntry{AgentID: "a", Tick: 2, Outcome: "ok"})

	counts, err := CountOutcomes(db, "a")
	if err != nil {
		t.Fatalf("CountOutcomes: %v", err)
	}
	if len(counts) != 2 || counts[0].Outcome != "ok" || counts[0].Count != 2 || counts[1].Count != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

// #endregion list-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
