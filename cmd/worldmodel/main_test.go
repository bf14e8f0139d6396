package main

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/config"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/motivation"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/state"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "worldmodel.db")
	cfg.Inference.ModelDir = filepath.Join(dir, "models")
	cfg.Pipeline.LatentDim = 4
	cfg.Pipeline.HiddenDim = 8
	cfg.World.CheckpointEvery = 2
	cfg.World.Schedule = "* * * * * *"
	return cfg
}

func TestExportThenBuildModels(t *testing.T) {
	cfg := testConfig(t)
	written, err := exportModels(cfg, 8, false)
	if err != nil {
		t.Fatalf("exportModels: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("expected 3 model files, got %v", written)
	}
	if _, err := exportModels(cfg, 8, false); err == nil {
		t.Fatal("expected error when models exist without force")
	}
	if _, err := exportModels(cfg, 8, true); err != nil {
		t.Fatalf("exportModels with force: %v", err)
	}

	pipe, err := openPipeline(cfg)
	if err != nil {
		t.Fatalf("openPipeline: %v", err)
	}
	defer pipe.Close()

	mot := motivation.NewState(cfg.Motivation, cfg.Agent.Personality)
	agent := newSimAgent(mot, cfg.Agent.PerceptionDim, cfg.Agent.ConsciousnessDim, time.Minute, 7)
	wm, err := pipeline.NewWorldModel(cfg.WorldSettings(), pipe, pipeline.Collaborators{
		Perception: agent, Motivation: agent, Consciousness: agent, Sink: agent,
	})
	if err != nil {
		t.Fatalf("NewWorldModel: %v", err)
	}
	if err := wm.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := len(pipe.LastStep().Discrete); got != cfg.Pipeline.ActionDim {
		t.Fatalf("expected action width %d, got %d", cfg.Pipeline.ActionDim, got)
	}
	if len(pipe.Hidden()) != cfg.Pipeline.HiddenDim {
		t.Fatalf("expected hidden width %d, got %d", cfg.Pipeline.HiddenDim, len(pipe.Hidden()))
	}
}

func TestBuildModelsMissing(t *testing.T) {
	cfg := testConfig(t)
	_, err := buildModels(cfg)
	if err == nil || !strings.Contains(err.Error(), "export-models") {
		t.Fatalf("expected hint to export models, got %v", err)
	}
}

func TestExportNeedsFixedActionWidth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.ActionDim = 0
	if _, err := exportModels(cfg, 8, false); err == nil {
		t.Fatal("expected error for action_dim 0")
	}
}

func TestSimAgentSources(t *testing.T) {
	mot := motivation.NewState(motivation.DefaultConfig(), motivation.Personality{})
	mot.SetNeeds(motivation.Needs{Fatigue: 0.25})
	mot.SetEmotions(motivation.Emotions{Happiness: 0.5, Stress: 0.2})

	a := newSimAgent(mot, 5, 6, time.Minute, 1)
	obs := a.ObservationData()
	if len(obs) != 5 {
		t.Fatalf("expected 5 perception values, got %d", len(obs))
	}
	for i, v := range obs {
		if math.IsNaN(float64(v)) || v < -2 || v > 2 {
			t.Fatalf("perception %d out of range: %f", i, v)
		}
	}
	if len(a.MotivationalContext()) != 12 {
		t.Fatal("motivational context must have 12 values")
	}

	cs := a.ConsciousnessState()
	want := []float32{1, 0.75, 0.2, 0.5, 0, 0}
	if len(cs) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(cs))
	}
	for i := range want {
		if math.Abs(float64(cs[i]-want[i])) > 1e-6 {
			t.Fatalf("consciousness %d: got %f, want %f", i, cs[i], want[i])
		}
	}

	short := newSimAgent(mot, 5, 2, time.Minute, 1)
	if got := short.ConsciousnessState(); len(got) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(got))
	}
}

func TestSimAgentNightPhase(t *testing.T) {
	mot := motivation.NewState(motivation.DefaultConfig(), motivation.Personality{})
	a := newSimAgent(mot, 1, 1, 90*time.Second, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.clock = func() time.Time { return now }
	if a.ConsciousnessState()[0] != 1 {
		t.Fatal("agent must be awake at the start of the day")
	}
	now = now.Add(75 * time.Second)
	if a.ConsciousnessState()[0] != 0 {
		t.Fatal("agent must sleep in the last third of the day")
	}
}

func TestSimAgentSink(t *testing.T) {
	mot := motivation.NewState(motivation.DefaultConfig(), motivation.Personality{})
	mot.SetNeeds(motivation.Needs{Hunger: 0.8})
	a := newSimAgent(mot, 1, 1, time.Minute, 1)

	a.RequestAction([]int{int(motivation.NeedEat), 3})
	a.RequestAction([]int{99})
	a.RequestAction(nil)

	_, n, _ := mot.Snapshot()
	if math.Abs(n.Hunger-0.3) > 1e-9 {
		t.Fatalf("expected hunger 0.3 after eating, got %f", n.Hunger)
	}
	counts, ignored := a.counts()
	if counts[motivation.NeedEat] != 1 || ignored != 2 {
		t.Fatalf("unexpected counts %v ignored=%d", counts, ignored)
	}
}

func TestSessionTicksJournalAndRestore(t *testing.T) {
	cfg := testConfig(t)
	if _, err := exportModels(cfg, 8, false); err != nil {
		t.Fatal(err)
	}

	rt, err := newSession(cfg, 3)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := rt.tick(context.Background(), time.Second); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	// the kill switch can be flipped by a config reload
	off := cfg
	off.Inference.Enabled = false
	rt.reload(off)
	if rt.world.Enabled() {
		t.Fatal("reload must apply the kill switch")
	}
	rt.reload(cfg)
	hidden := rt.world.Pipeline().Hidden()
	if err := rt.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	ticks, err := logging.ListTicks(store.DB(), cfg.AgentID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 3 {
		t.Fatalf("expected 3 logged ticks, got %d", len(ticks))
	}
	latest, err := store.Latest(cfg.AgentID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Tick != 3 {
		t.Fatalf("expected final checkpoint at tick 3, got %d", latest.Tick)
	}
	store.Close()

	// a new session resumes from the final checkpoint
	rt, err = newSession(cfg, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := rt.world.Pipeline().Hidden()
	for i := range hidden {
		if got[i] != hidden[i] {
			t.Fatalf("hidden %d not restored: got %f, want %f", i, got[i], hidden[i])
		}
	}
	// tick numbers continue across sessions
	if err := rt.tick(context.Background(), time.Second); err != nil {
		t.Fatalf("resumed tick: %v", err)
	}
	if err := rt.close(); err != nil {
		t.Fatalf("close resumed session: %v", err)
	}

	store, err = state.NewStore(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ticks, err = logging.ListTicks(store.DB(), cfg.AgentID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 1 || ticks[0].Tick != 4 {
		t.Fatalf("expected newest logged tick 4, got %+v", ticks)
	}
	if latest, err = store.Latest(cfg.AgentID); err != nil || latest.Tick != 4 {
		t.Fatalf("expected final checkpoint at tick 4, got %d (%v)", latest.Tick, err)
	}
}

func TestSessionRestoreWithoutTicksSkipsCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.World.CheckpointEvery = 0
	if _, err := exportModels(cfg, 8, false); err != nil {
		t.Fatal(err)
	}

	rt, err := newSession(cfg, 1)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if err := rt.tick(context.Background(), time.Second); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if err := rt.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// reopening and closing without a tick must not add a checkpoint
	rt, err = newSession(cfg, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if rt.resumed != 1 {
		t.Fatalf("expected session resumed from tick 1, got %d", rt.resumed)
	}
	if err := rt.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	cps, err := store.ListCheckpoints(cfg.AgentID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cps) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(cps))
	}
}

func TestSessionDisabledOnlyDecays(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inference.Enabled = false

	rt, err := newSession(cfg, 1)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	_, before, _ := rt.mot.Snapshot()
	if err := rt.tick(context.Background(), 10*time.Minute); err != nil {
		t.Fatalf("tick: %v", err)
	}
	_, after, _ := rt.mot.Snapshot()
	if after.Hunger <= before.Hunger {
		t.Fatal("motivation must keep decaying with inference disabled")
	}
	if rt.world.Pipeline() != nil {
		t.Fatal("no pipeline should be built when disabled")
	}
	// a reload cannot enable inference without models
	enabled := cfg
	enabled.Inference.Enabled = true
	rt.reload(enabled)
	if rt.world.Enabled() {
		t.Fatal("reload must not enable a world model without a pipeline")
	}
	if err := rt.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunAgentStopsAfterTicks(t *testing.T) {
	cfg := testConfig(t)
	if _, err := exportModels(cfg, 8, false); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runAgent(ctx, cfg, "", 1, 1); err != nil {
		t.Fatalf("runAgent: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("runAgent must stop on its own after the tick limit")
	}

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	counts, err := logging.CountOutcomes(store.DB(), cfg.AgentID)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) == 0 {
		t.Fatal("expected at least one logged tick")
	}
}
