// Package config loads the world model's YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/gate"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/history"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/motivation"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/tracing"
)

// #region constants

const (
	BackendLoom   = "loom"
	BackendRemote = "remote"

	DefaultDBPath    = "worldmodel.db"
	DefaultStageAddr = "localhost:50061"
	DefaultModelDir  = "models"
	DefaultSchedule  = "@every 1s"
)

// #endregion constants

// #region types

// Config is the full runtime configuration.
type Config struct {
	AgentID    string            `yaml:"agent_id"`
	DBPath     string            `yaml:"db_path"`
	Inference  InferenceConfig   `yaml:"inference"`
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	World      WorldConfig       `yaml:"world"`
	Agent      AgentConfig       `yaml:"agent"`
	Motivation motivation.Config `yaml:"motivation"`
	Gate       gate.GateConfig   `yaml:"gate"`
	Eval       eval.EvalConfig   `yaml:"eval"`
	Tracing    tracing.Config    `yaml:"tracing"`
}

// InferenceConfig selects where stage models run.
type InferenceConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Backend   string        `yaml:"backend"`
	ModelDir  string        `yaml:"model_dir"`
	StageAddr string        `yaml:"stage_addr"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxLive   int           `yaml:"max_live_buffers"`
}

// PipelineConfig fixes the vector widths.
type PipelineConfig struct {
	LatentDim       int `yaml:"latent_dim"`
	HiddenDim       int `yaml:"hidden_dim"`
	ActionDim       int `yaml:"action_dim"`
	HistoryCapacity int `yaml:"history_capacity"`
}

// WorldConfig drives the tick loop.
type WorldConfig struct {
	Schedule               string        `yaml:"schedule"`
	DayLength              time.Duration `yaml:"day_length"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	CheckpointEvery        int           `yaml:"checkpoint_every"`
}

// AgentConfig describes the simulated agent's collaborators.
type AgentConfig struct {
	PerceptionDim    int                    `yaml:"perception_dim"`
	ConsciousnessDim int                    `yaml:"consciousness_dim"`
	Personality      motivation.Personality `yaml:"personality"`
}

// #endregion types

// #region defaults

// Default returns a configuration that runs a headless loom agent.
func Default() Config {
	pc := pipeline.DefaultConfig()
	wc := pipeline.DefaultWorldConfig()
	return Config{
		AgentID: "agent-1",
		DBPath:  DefaultDBPath,
		Inference: InferenceConfig{
			Enabled:   true,
			Backend:   BackendLoom,
			ModelDir:  DefaultModelDir,
			StageAddr: DefaultStageAddr,
			Timeout:   2 * time.Second,
		},
		Pipeline: PipelineConfig{
			LatentDim:       pc.LatentDim,
			HiddenDim:       pc.HiddenDim,
			ActionDim:       2,
			HistoryCapacity: history.DefaultCapacity,
		},
		World: WorldConfig{
			Schedule:               DefaultSchedule,
			DayLength:              wc.DayLength,
			MaxConsecutiveFailures: wc.MaxConsecutiveFailures,
			CheckpointEvery:        50,
		},
		Agent: AgentConfig{
			PerceptionDim:    8,
			ConsciousnessDim: 4,
			Personality:      motivation.Personality{Openness: 0.5, Conscientiousness: 0.5, Extraversion: 0.5},
		},
		Motivation: motivation.DefaultConfig(),
		Gate:       gate.DefaultGateConfig(),
		Eval:       eval.DefaultEvalConfig(),
		Tracing:    tracing.DefaultConfig(),
	}
}

// #endregion defaults

// #region load

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv lets deployments override the file without editing it.
// INFERENCE_ENABLED=false is the kill switch.
func (c *Config) applyEnv() {
	c.DBPath = envOr("WORLDMODEL_DB", c.DBPath)
	c.Inference.StageAddr = envOr("STAGE_ADDR", c.Inference.StageAddr)
	c.Inference.Backend = envOr("INFERENCE_BACKEND", c.Inference.Backend)
	c.Inference.ModelDir = envOr("MODEL_DIR", c.Inference.ModelDir)
	c.AgentID = envOr("AGENT_ID", c.AgentID)
	c.Tracing.Endpoint = envOr("OTLP_ENDPOINT", c.Tracing.Endpoint)
	if v := os.Getenv("INFERENCE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Inference.Enabled = enabled
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Save writes the configuration as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// #endregion load

// #region validate

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.AgentID == "" {
		errs = append(errs, errors.New("agent_id is empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	switch c.Inference.Backend {
	case BackendLoom:
	case BackendRemote:
		if c.Inference.StageAddr == "" {
			errs = append(errs, errors.New("inference.stage_addr is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("inference.backend %q: want %q or %q", c.Inference.Backend, BackendLoom, BackendRemote))
	}
	if c.Inference.Timeout < 0 {
		errs = append(errs, errors.New("inference.timeout is negative"))
	}
	if c.Pipeline.LatentDim <= 0 || c.Pipeline.HiddenDim <= 0 {
		errs = append(errs, fmt.Errorf("pipeline dims must be positive (latent=%d hidden=%d)", c.Pipeline.LatentDim, c.Pipeline.HiddenDim))
	}
	if c.Pipeline.ActionDim < 0 {
		errs = append(errs, errors.New("pipeline.action_dim is negative"))
	}
	if c.Pipeline.HistoryCapacity < 1 {
		errs = append(errs, errors.New("pipeline.history_capacity must be at least 1"))
	}
	if c.World.Schedule == "" {
		errs = append(errs, errors.New("world.schedule is empty"))
	}
	if c.World.DayLength <= 0 {
		errs = append(errs, errors.New("world.day_length must be positive"))
	}
	if c.World.CheckpointEvery < 0 {
		errs = append(errs, errors.New("world.checkpoint_every is negative"))
	}
	if c.Agent.PerceptionDim <= 0 || c.Agent.ConsciousnessDim <= 0 {
		errs = append(errs, fmt.Errorf("agent dims must be positive (perception=%d consciousness=%d)", c.Agent.PerceptionDim, c.Agent.ConsciousnessDim))
	}
	if c.Gate.MaxDeltaNorm < 0 || c.Gate.MaxStateNorm < 0 {
		errs = append(errs, errors.New("gate bounds must not be negative"))
	}
	if c.Eval.MaxHiddenNorm < 0 || c.Eval.SaturationLevel < 0 {
		errs = append(errs, errors.New("eval bounds must not be negative"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate %v outside [0, 1]", c.Tracing.SampleRate))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// #endregion validate

// #region conversions

// PipelineSettings converts to the pipeline's own config type.
func (c Config) PipelineSettings() pipeline.Config {
	return pipeline.Config{
		LatentDim:       c.Pipeline.LatentDim,
		HiddenDim:       c.Pipeline.HiddenDim,
		ActionDim:       c.Pipeline.ActionDim,
		HistoryCapacity: c.Pipeline.HistoryCapacity,
	}
}

// WorldSettings converts to the world model's config type.
func (c Config) WorldSettings() pipeline.WorldConfig {
	wc := pipeline.DefaultWorldConfig()
	wc.Enabled = c.Inference.Enabled
	wc.DayLength = c.World.DayLength
	wc.MaxConsecutiveFailures = c.World.MaxConsecutiveFailures
	return wc
}

// #endregion conversions
