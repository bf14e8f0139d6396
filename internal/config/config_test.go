package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"WORLDMODEL_DB", "STAGE_ADDR", "INFERENCE_BACKEND", "MODEL_DIR", "AGENT_ID", "INFERENCE_ENABLED", "OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Pipeline.LatentDim != 32 || cfg.Pipeline.HiddenDim != 256 || cfg.Pipeline.HistoryCapacity != 10 {
		t.Fatalf("unexpected default dims %+v", cfg.Pipeline)
	}
	if !cfg.Inference.Enabled || cfg.Inference.Backend != BackendLoom {
		t.Fatalf("unexpected default inference %+v", cfg.Inference)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != DefaultDBPath {
		t.Fatalf("expected %s, got %s", DefaultDBPath, cfg.DBPath)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldmodel.yaml")
	data := `
agent_id: scout
inference:
  backend: remote
  stage_addr: infer:9000
  timeout: 500ms
pipeline:
  hidden_dim: 64
world:
  day_length: 10m
gate:
  max_delta_norm: 4.5
agent:
  perception_dim: 16
  personality:
    openness: 0.9
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	clearEnv(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentID != "scout" || cfg.Inference.Backend != BackendRemote || cfg.Inference.StageAddr != "infer:9000" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Inference.Timeout != 500*time.Millisecond || cfg.World.DayLength != 10*time.Minute {
		t.Fatalf("durations not parsed: timeout=%v day=%v", cfg.Inference.Timeout, cfg.World.DayLength)
	}
	if cfg.Pipeline.HiddenDim != 64 || cfg.Pipeline.LatentDim != 32 {
		t.Fatalf("expected hidden 64 and default latent 32, got %+v", cfg.Pipeline)
	}
	if cfg.Agent.PerceptionDim != 16 || cfg.Agent.Personality.Openness != 0.9 {
		t.Fatalf("agent values not applied: %+v", cfg.Agent)
	}
	if cfg.Gate.MaxDeltaNorm != 4.5 || cfg.Gate.MaxStateNorm != 64 {
		t.Fatalf("gate values not merged: %+v", cfg.Gate)
	}
	// untouched sections keep defaults
	if !cfg.Inference.Enabled || cfg.World.Schedule != DefaultSchedule {
		t.Fatalf("defaults lost: %+v %+v", cfg.Inference, cfg.World)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORLDMODEL_DB", "/tmp/other.db")
	t.Setenv("STAGE_ADDR", "gpu-box:50061")
	t.Setenv("INFERENCE_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/other.db" || cfg.Inference.StageAddr != "gpu-box:50061" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Inference.Enabled {
		t.Fatal("INFERENCE_ENABLED=false must disable inference")
	}
	if cfg.WorldSettings().Enabled {
		t.Fatal("world settings must carry the kill switch")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("pipeline: [1, 2"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Inference.Backend = "cuda"
	cfg.Pipeline.HiddenDim = 0
	cfg.World.DayLength = 0
	cfg.Gate.MaxStateNorm = -1
	cfg.Tracing.SampleRate = 1.5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"backend", "pipeline dims", "day_length", "gate bounds", "sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.AgentID = "saved"
	cfg.World.DayLength = 3 * time.Minute
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	clearEnv(t)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AgentID != "saved" || got.World.DayLength != 3*time.Minute {
		t.Fatalf("round trip lost values: %+v", got)
	}
}

func TestPipelineSettings(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.ActionDim = 3
	pc := cfg.PipelineSettings()
	if pc.LatentDim != 32 || pc.HiddenDim != 256 || pc.ActionDim != 3 || pc.HistoryCapacity != 10 {
		t.Fatalf("unexpected pipeline settings %+v", pc)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "worldmodel.yaml")
	if err := os.WriteFile(path, []byte("inference:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan Config, 4)
	w, err := Watch(path, func(c Config) { changes <- c })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	// writes to other files in the directory are ignored
	os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o644)
	if err := os.WriteFile(path, []byte("inference:\n  enabled: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if !c.Inference.Enabled {
				return
			}
		case <-deadline:
			t.Fatal("no reload observed within 5s")
		}
	}
}

func TestWatchCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldmodel.yaml")
	os.WriteFile(path, []byte(""), 0o644)
	w, err := Watch(path, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := Watch("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}
