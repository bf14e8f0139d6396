package state

import (
	"errors"
	"time"
)

// #region checkpoint
// Checkpoint is a versioned snapshot of one agent's recurrent hidden state.
type Checkpoint struct {
	VersionID     string
	AgentID       string
	ParentID      string
	Tick          uint64
	Hidden        []float32
	LayoutVersion int
	CreatedAt     time.Time
	MetricsJSON   string
}
// #endregion checkpoint

// #region errors
// ErrNoCheckpoint is returned when an agent has no active checkpoint yet.
var ErrNoCheckpoint = errors.New("no checkpoint")

// ErrCheckpointRejected is returned when the checkpoint gate vetoes a hidden state.
var ErrCheckpointRejected = errors.New("checkpoint rejected")
// #endregion errors
