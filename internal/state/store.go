package state

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	version_id     TEXT PRIMARY KEY,
	agent_id       TEXT NOT NULL,
	parent_id      TEXT,
	tick           INTEGER NOT NULL,
	hidden         BLOB NOT NULL,
	hidden_dim     INTEGER NOT NULL,
	layout_version INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	metrics_json   TEXT,
	FOREIGN KEY (parent_id) REFERENCES checkpoints(version_id)
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_agent ON checkpoints(agent_id, created_at);

CREATE TABLE IF NOT EXISTS active_checkpoint (
	agent_id       TEXT PRIMARY KEY,
	version_id     TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES checkpoints(version_id)
);

CREATE TABLE IF NOT EXISTS tick_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id       TEXT NOT NULL,
	tick           INTEGER NOT NULL,
	outcome        TEXT NOT NULL,
	stage          TEXT,
	reason         TEXT,
	action_json    TEXT,
	clock_phase    REAL NOT NULL,
	tick_duration  REAL NOT NULL,
	version_id     TEXT,
	created_at     TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store manages versioned hidden-state checkpoints in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema on db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion close

// #region commit
// CommitCheckpoint stores cp as the agent's new active checkpoint. An empty
// VersionID gets a fresh UUID; an empty ParentID is filled from the agent's
// current active checkpoint. The stored record is returned.
func (s *Store) CommitCheckpoint(cp Checkpoint) (Checkpoint, error) {
	if cp.AgentID == "" {
		return Checkpoint{}, fmt.Errorf("commit checkpoint: empty agent id")
	}
	if cp.VersionID == "" {
		cp.VersionID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if cp.ParentID == "" {
		var parent string
		err := tx.QueryRow(`SELECT version_id FROM active_checkpoint WHERE agent_id = ?`, cp.AgentID).Scan(&parent)
		switch {
		case err == nil:
			cp.ParentID = parent
		case !errors.Is(err, sql.ErrNoRows):
			return Checkpoint{}, fmt.Errorf("get parent: %w", err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO checkpoints (version_id, agent_id, parent_id, tick, hidden, hidden_dim, layout_version, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.VersionID, cp.AgentID, nullIfEmpty(cp.ParentID), int64(cp.Tick),
		encodeVector(cp.Hidden), len(cp.Hidden), cp.LayoutVersion,
		cp.CreatedAt.Format(time.RFC3339Nano), nullIfEmpty(cp.MetricsJSON),
	)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_checkpoint (agent_id, version_id) VALUES (?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET version_id = excluded.version_id`,
		cp.AgentID, cp.VersionID,
	)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Checkpoint{}, fmt.Errorf("commit: %w", err)
	}
	return cp, nil
}
// #endregion commit

// #region latest
// Latest reads the agent's active checkpoint. It returns ErrNoCheckpoint
// when the agent has none.
func (s *Store) Latest(agentID string) (Checkpoint, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_checkpoint WHERE agent_id = ?`, agentID).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("latest %s: %w", agentID, ErrNoCheckpoint)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}
// #endregion latest

// #region get-version
// GetVersion retrieves a specific checkpoint by ID.
func (s *Store) GetVersion(id string) (Checkpoint, error) {
	row := s.db.QueryRow(
		`SELECT version_id, agent_id, parent_id, tick, hidden, hidden_dim, layout_version, created_at, metrics_json
		 FROM checkpoints WHERE version_id = ?`, id,
	)
	cp, err := scanCheckpoint(row)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return cp, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(r rowScanner) (Checkpoint, error) {
	var cp Checkpoint
	var parentID, metricsJSON sql.NullString
	var tick int64
	var dim int
	var blob []byte
	var createdStr string

	if err := r.Scan(&cp.VersionID, &cp.AgentID, &parentID, &tick, &blob, &dim,
		&cp.LayoutVersion, &createdStr, &metricsJSON); err != nil {
		return Checkpoint{}, err
	}
	if len(blob) != dim*4 {
		return Checkpoint{}, fmt.Errorf("hidden blob is %d bytes, want %d", len(blob), dim*4)
	}
	cp.ParentID = parentID.String
	cp.MetricsJSON = metricsJSON.String
	cp.Tick = uint64(tick)
	cp.Hidden = decodeVector(blob)
	cp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return cp, nil
}
// #endregion get-version

// #region rollback
// Rollback points the agent's active checkpoint at an earlier version.
func (s *Store) Rollback(agentID, targetVersionID string) error {
	var owner string
	err := s.db.QueryRow(
		`SELECT agent_id FROM checkpoints WHERE version_id = ?`, targetVersionID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %s not found", targetVersionID)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if owner != agentID {
		return fmt.Errorf("version %s belongs to agent %s, not %s", targetVersionID, owner, agentID)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_checkpoint (agent_id, version_id) VALUES (?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET version_id = excluded.version_id`,
		agentID, targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region list
// ListCheckpoints returns the agent's most recent checkpoints, newest first.
func (s *Store) ListCheckpoints(agentID string, limit int) ([]Checkpoint, error) {
	rows, err := s.db.Query(
		`SELECT version_id, agent_id, parent_id, tick, hidden, hidden_dim, layout_version, created_at, metrics_json
		 FROM checkpoints WHERE agent_id = ? ORDER BY created_at DESC, tick DESC LIMIT ?`, agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Agents returns every agent with an active checkpoint.
func (s *Store) Agents() ([]string, error) {
	rows, err := s.db.Query(`SELECT agent_id FROM active_checkpoint ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
// #endregion list

// #region vector-encoding
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion vector-encoding
