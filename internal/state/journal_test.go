package state

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/compose"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/gate"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/model"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"
)

func okRecord(tick uint64, hidden float32) pipeline.TickRecord {
	return pipeline.TickRecord{
		Tick:       tick,
		Outcome:    pipeline.OutcomeOK,
		Action:     []int{0, 2},
		Hidden:     vec(4, hidden),
		ClockPhase: 0.5,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestJournalLogsEveryTick(t *testing.T) {
	s := tempDB(t)
	j := NewJournal(s, "a", 0)

	j.RecordTick(context.Background(), okRecord(1, 1))
	err := j.RecordTick(context.Background(), pipeline.TickRecord{
		Tick: 2, Outcome: pipeline.OutcomeStageFailure, Stage: executor.StageEncoder, Reason: "boom",
	})
	if err != nil {
		t.Fatalf("RecordTick: %v", err)
	}

	entries, err := logging.ListTicks(s.DB(), "a", 10)
	if err != nil {
		t.Fatalf("ListTicks: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Outcome != pipeline.OutcomeStageFailure || entries[0].Stage != "encoder" || entries[0].ActionJSON != "" {
		t.Fatalf("unexpected failure entry %+v", entries[0])
	}
	if entries[1].ActionJSON != "[0,2]" {
		t.Fatalf("expected action JSON, got %q", entries[1].ActionJSON)
	}
	if _, err := s.Latest("a"); err == nil {
		t.Fatal("checkpointing disabled, expected no checkpoint")
	}
}

func TestJournalCheckpointsEveryN(t *testing.T) {
	s := tempDB(t)
	j := NewJournal(s, "a", 2)

	for i := uint64(1); i <= 5; i++ {
		if err := j.RecordTick(context.Background(), okRecord(i, float32(i))); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	// failures do not count toward the interval
	j.RecordTick(context.Background(), pipeline.TickRecord{Tick: 6, Outcome: pipeline.OutcomeConfigError})

	cps, _ := s.ListCheckpoints("a", 10)
	if len(cps) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(cps))
	}
	latest, _ := s.Latest("a")
	if latest.Tick != 4 || latest.Hidden[0] != 4 || latest.LayoutVersion != compose.LayoutVersion {
		t.Fatalf("unexpected latest checkpoint %+v", latest)
	}

	entries, _ := logging.ListTicks(s.DB(), "a", 10)
	var tagged int
	for _, e := range entries {
		if e.VersionID != "" {
			tagged++
		}
	}
	if tagged != 2 {
		t.Fatalf("expected 2 log entries tagged with a checkpoint, got %d", tagged)
	}
}

func newRestoreTarget(t *testing.T, hiddenDim int) *pipeline.Pipeline {
	t.Helper()
	id := func(stage executor.Stage, out string, n int) executor.Model {
		return model.NewFunc(stage.Inputs(), func(context.Context, map[string][]float32) (map[string][]float32, error) {
			return map[string][]float32{out: make([]float32, n)}, nil
		})
	}
	cfg := pipeline.Config{LatentDim: 2, HiddenDim: hiddenDim, HistoryCapacity: 10}
	p, err := pipeline.New(cfg, device.NewHost(0), pipeline.Models{
		Encoder:    id(executor.StageEncoder, executor.OutputLatentState, 2),
		Transition: id(executor.StageTransition, executor.OutputHiddenState, hiddenDim),
		Controller: id(executor.StageController, executor.OutputAction, 1),
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestJournalRestore(t *testing.T) {
	s := tempDB(t)
	j := NewJournal(s, "a", 0)
	p := newRestoreTarget(t, 4)

	if _, ok, err := j.Restore(p); ok || err != nil {
		t.Fatalf("expected nothing to restore, got ok=%v err=%v", ok, err)
	}

	if _, err := j.Checkpoint(9, vec(4, 0.25)); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	cp, ok, err := j.Restore(p)
	if err != nil || !ok {
		t.Fatalf("Restore: ok=%v err=%v", ok, err)
	}
	if cp.Tick != 9 || p.Hidden()[3] != 0.25 {
		t.Fatalf("hidden not restored: %v", p.Hidden())
	}
	if p.Ticks() != 9 {
		t.Fatalf("tick numbering must continue from 9, got %d", p.Ticks())
	}
}

func TestJournalRestoreSkipsIncompatible(t *testing.T) {
	s := tempDB(t)
	j := NewJournal(s, "a", 0)
	p := newRestoreTarget(t, 4)

	j.Checkpoint(1, vec(8, 1))
	if _, ok, err := j.Restore(p); ok || err != nil {
		t.Fatalf("expected width mismatch to be skipped, got ok=%v err=%v", ok, err)
	}

	s.CommitCheckpoint(Checkpoint{AgentID: "a", Hidden: vec(4, 1), LayoutVersion: compose.LayoutVersion + 1})
	if _, ok, err := j.Restore(p); ok || err != nil {
		t.Fatalf("expected layout mismatch to be skipped, got ok=%v err=%v", ok, err)
	}
	if p.Hidden()[0] != 0 || p.Ticks() != 0 {
		t.Fatalf("skipped restore must not touch the pipeline, hidden=%v ticks=%d", p.Hidden(), p.Ticks())
	}
}

func TestJournalGateRejectsCheckpoint(t *testing.T) {
	s := tempDB(t)
	j := NewJournal(s, "a", 1).WithChecks(gate.NewGate(gate.GateConfig{MaxDeltaNorm: 1}), nil)

	if err := j.RecordTick(context.Background(), okRecord(1, 0.1)); err != nil {
		t.Fatalf("first checkpoint: %v", err)
	}
	// jumps by 2 per element from the parent, far past the delta cap
	err := j.RecordTick(context.Background(), okRecord(2, 2.1))
	if !errors.Is(err, ErrCheckpointRejected) {
		t.Fatalf("expected ErrCheckpointRejected, got %v", err)
	}

	latest, _ := s.Latest("a")
	if latest.Tick != 1 {
		t.Fatalf("rejected checkpoint must not become active, latest tick %d", latest.Tick)
	}
	// the tick itself is still logged
	entries, _ := logging.ListTicks(s.DB(), "a", 10)
	if len(entries) != 2 || entries[0].VersionID != "" {
		t.Fatalf("expected 2 entries with the newest untagged, got %+v", entries)
	}

	if _, err := j.Checkpoint(3, vec(4, float32(math.NaN()))); !errors.Is(err, ErrCheckpointRejected) {
		t.Fatalf("expected NaN hidden state to be rejected, got %v", err)
	}
}

func TestJournalStoresEvalMetrics(t *testing.T) {
	s := tempDB(t)
	j := NewJournal(s, "a", 0).WithChecks(nil, eval.NewEvalHarness(eval.DefaultEvalConfig()))

	cp, err := j.Checkpoint(1, vec(4, 0.5))
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	got, err := s.GetVersion(cp.VersionID)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if !strings.Contains(got.MetricsJSON, `"hidden_norm"`) || !strings.Contains(got.MetricsJSON, `"passed":true`) {
		t.Fatalf("unexpected metrics %q", got.MetricsJSON)
	}
}
