package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/compose"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/gate"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"
)

// #region journal-struct
// Journal records every tick of one agent to the tick log and checkpoints
// the hidden state after every `every` successful ticks (0 disables
// periodic checkpoints).
type Journal struct {
	store   *Store
	agentID string
	every   int
	gate    *gate.Gate
	eval    *eval.EvalHarness

	mu      sync.Mutex
	okTicks int
}

// NewJournal creates a journal for agentID backed by store.
func NewJournal(store *Store, agentID string, every int) *Journal {
	return &Journal{store: store, agentID: agentID, every: every}
}

// WithChecks makes every checkpoint pass g against the parent checkpoint and
// stores h's metrics with it. Either may be nil.
func (j *Journal) WithChecks(g *gate.Gate, h *eval.EvalHarness) *Journal {
	j.gate, j.eval = g, h
	return j
}
// #endregion journal-struct

// #region record
// RecordTick implements pipeline.Journal.
func (j *Journal) RecordTick(_ context.Context, rec pipeline.TickRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	entry := logging.TickEntry{
		AgentID:      j.agentID,
		Tick:         rec.Tick,
		Outcome:      rec.Outcome,
		Stage:        string(rec.Stage),
		Reason:       rec.Reason,
		ClockPhase:   rec.ClockPhase,
		TickDuration: rec.TickDuration,
		CreatedAt:    rec.CreatedAt,
	}
	if rec.Action != nil {
		data, err := json.Marshal(rec.Action)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal action: %w", err))
		}
		entry.ActionJSON = string(data)
	}

	if rec.Outcome == pipeline.OutcomeOK {
		j.okTicks++
		if j.every > 0 && j.okTicks%j.every == 0 {
			cp, err := j.checkpoint(rec.Tick, rec.Hidden)
			if err != nil {
				errs = append(errs, err)
			} else {
				entry.VersionID = cp.VersionID
			}
		}
	}

	if err := logging.LogTick(j.store.DB(), entry); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
// #endregion record

// #region checkpoint
// Checkpoint commits hidden as the agent's active checkpoint immediately,
// e.g. on shutdown.
func (j *Journal) Checkpoint(tick uint64, hidden []float32) (Checkpoint, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.checkpoint(tick, hidden)
}

func (j *Journal) checkpoint(tick uint64, hidden []float32) (Checkpoint, error) {
	if j.gate != nil {
		var parent []float32
		prev, err := j.store.Latest(j.agentID)
		switch {
		case err == nil:
			parent = prev.Hidden
		case !errors.Is(err, ErrNoCheckpoint):
			return Checkpoint{}, fmt.Errorf("checkpoint tick %d: %w", tick, err)
		}
		decision := j.gate.Evaluate(parent, hidden)
		if decision.Vetoed {
			log.Printf("[STORE] checkpoint tick %d rejected: %s", tick, decision.Reason)
			return Checkpoint{}, fmt.Errorf("checkpoint tick %d: %w: %s", tick, ErrCheckpointRejected, decision.Reason)
		}
	}

	var metrics string
	if j.eval != nil {
		result := j.eval.Run(hidden)
		if !result.Passed {
			log.Printf("[STORE] checkpoint tick %d: %s", tick, result.Reason)
		}
		var err error
		if metrics, err = result.JSON(); err != nil {
			return Checkpoint{}, err
		}
	}

	cp, err := j.store.CommitCheckpoint(Checkpoint{
		AgentID:       j.agentID,
		Tick:          tick,
		Hidden:        hidden,
		LayoutVersion: compose.LayoutVersion,
		MetricsJSON:   metrics,
	})
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint tick %d: %w", tick, err)
	}
	log.Printf("[STORE] checkpoint %s agent=%s tick=%d dim=%d", cp.VersionID[:8], j.agentID, tick, len(hidden))
	return cp, nil
}
// #endregion checkpoint

// #region restore
// Restore loads the agent's active checkpoint into p. It reports false
// without error when there is nothing usable to restore: no checkpoint, a
// different observation layout, or a different hidden width.
func (j *Journal) Restore(p *pipeline.Pipeline) (Checkpoint, bool, error) {
	cp, err := j.store.Latest(j.agentID)
	if errors.Is(err, ErrNoCheckpoint) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	if cp.LayoutVersion != compose.LayoutVersion {
		log.Printf("[STORE] skip restore %s: layout v%d, running v%d", cp.VersionID, cp.LayoutVersion, compose.LayoutVersion)
		return cp, false, nil
	}
	if len(cp.Hidden) != p.Config().HiddenDim {
		log.Printf("[STORE] skip restore %s: hidden dim %d, running %d", cp.VersionID, len(cp.Hidden), p.Config().HiddenDim)
		return cp, false, nil
	}
	if err := p.Resume(cp.Hidden, cp.Tick); err != nil {
		return cp, false, err
	}
	log.Printf("[STORE] restored agent=%s from %s (tick %d)", j.agentID, cp.VersionID, cp.Tick)
	return cp, true, nil
}
// #endregion restore
