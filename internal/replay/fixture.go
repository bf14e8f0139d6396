package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/compose"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/model"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/model/loomnet"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string                  `json:"description"`
	Pipeline    FixturePipeline         `json:"pipeline"`
	Models      FixtureModels           `json:"models"`
	StartHidden []float32               `json:"start_hidden,omitempty"`
	Frames      []FixtureFrame          `json:"frames"`
	Expected    []FixtureExpectedResult `json:"expected_results"`

	dir string
}

// FixturePipeline mirrors pipeline.Config with JSON tags.
type FixturePipeline struct {
	LatentDim       int `json:"latent_dim"`
	HiddenDim       int `json:"hidden_dim"`
	ActionDim       int `json:"action_dim"`
	HistoryCapacity int `json:"history_capacity"`
}

// FixtureModels names the model for each stage.
type FixtureModels struct {
	Encoder    FixtureModel `json:"encoder"`
	Transition FixtureModel `json:"transition"`
	Controller FixtureModel `json:"controller"`
}

// FixtureModel describes a deterministic stage model.
//
//	constant:  every output is Values (transition: hidden_state only)
//	increment: hidden_state = hidden + Step (transition only)
//	loom:      a saved loom network at Path with network ID
type FixtureModel struct {
	Kind   string    `json:"kind"`
	Values []float32 `json:"values,omitempty"`
	Step   float32   `json:"step,omitempty"`
	Path   string    `json:"path,omitempty"`
	ID     string    `json:"id,omitempty"`
}

// FixtureFrame mirrors Frame with JSON tags.
type FixtureFrame struct {
	ID            string    `json:"id"`
	Perception    []float32 `json:"perception"`
	Motivation    []float32 `json:"motivation"`
	Consciousness []float32 `json:"consciousness"`
	ClockPhase    float64   `json:"clock_phase"`
	TickDuration  float64   `json:"tick_duration"`
}

// FixtureExpectedResult captures the expected outcome per frame. A nil
// Action is not checked.
type FixtureExpectedResult struct {
	FrameID string `json:"frame_id"`
	Outcome string `json:"outcome"`
	Action  []int  `json:"action,omitempty"`
}

// Mismatch describes one frame whose replayed outcome differs from the fixture.
type Mismatch struct {
	FrameID  string
	Expected FixtureExpectedResult
	Got      Result
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	f.dir = filepath.Dir(path)
	return &f, nil
}

// ToFrame converts a FixtureFrame to a Frame.
func (ff *FixtureFrame) ToFrame() Frame {
	return Frame{
		ID:            ff.ID,
		Perception:    ff.Perception,
		Motivation:    ff.Motivation,
		Consciousness: ff.Consciousness,
		ClockPhase:    ff.ClockPhase,
		TickDuration:  ff.TickDuration,
	}
}

// Config converts the fixture pipeline section.
func (f *Fixture) Config() pipeline.Config {
	cfg := pipeline.Config{
		LatentDim:       f.Pipeline.LatentDim,
		HiddenDim:       f.Pipeline.HiddenDim,
		ActionDim:       f.Pipeline.ActionDim,
		HistoryCapacity: f.Pipeline.HistoryCapacity,
	}
	if cfg.HistoryCapacity == 0 {
		cfg.HistoryCapacity = pipeline.DefaultConfig().HistoryCapacity
	}
	return cfg
}

// #endregion fixture-loader

// #region fixture-models

// BuildPipeline constructs the pipeline the fixture describes on dev and
// applies StartHidden if present.
func (f *Fixture) BuildPipeline(dev device.Device) (*pipeline.Pipeline, error) {
	if len(f.Frames) == 0 {
		return nil, fmt.Errorf("fixture has no frames")
	}
	first := f.Frames[0]
	dims := loomnet.Dims{
		Observation: compose.ObservationDim(len(first.Perception), len(first.Consciousness)),
		Context:     compose.ContextDim(len(first.Consciousness)),
		Latent:      f.Pipeline.LatentDim,
		Hidden:      f.Pipeline.HiddenDim,
		Action:      f.Pipeline.ActionDim,
	}

	var models pipeline.Models
	for _, s := range []struct {
		stage executor.Stage
		spec  FixtureModel
		dst   *executor.Model
	}{
		{executor.StageEncoder, f.Models.Encoder, &models.Encoder},
		{executor.StageTransition, f.Models.Transition, &models.Transition},
		{executor.StageController, f.Models.Controller, &models.Controller},
	} {
		m, err := f.buildModel(s.stage, s.spec, dims)
		if err != nil {
			return nil, fmt.Errorf("fixture %s model: %w", s.stage, err)
		}
		*s.dst = m
	}

	p, err := pipeline.New(f.Config(), dev, models)
	if err != nil {
		return nil, err
	}
	if len(f.StartHidden) > 0 {
		if err := p.RestoreHidden(f.StartHidden); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func (f *Fixture) buildModel(stage executor.Stage, spec FixtureModel, dims loomnet.Dims) (executor.Model, error) {
	primary := stage.Outputs()[0].Name
	switch spec.Kind {
	case "constant":
		values := slices.Clone(spec.Values)
		return model.NewFunc(stage.Inputs(), func(context.Context, map[string][]float32) (map[string][]float32, error) {
			return map[string][]float32{primary: values}, nil
		}), nil
	case "increment":
		if stage != executor.StageTransition {
			return nil, fmt.Errorf("increment model only applies to the transition stage")
		}
		step := spec.Step
		return model.NewFunc(stage.Inputs(), func(_ context.Context, in map[string][]float32) (map[string][]float32, error) {
			h := in[executor.InputHidden]
			next := make([]float32, len(h))
			for i := range h {
				next[i] = h[i] + step
			}
			return map[string][]float32{executor.OutputHiddenState: next}, nil
		}), nil
	case "loom":
		in, out, err := loomnet.StagePorts(stage, dims)
		if err != nil {
			return nil, err
		}
		path := spec.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(f.dir, path)
		}
		return loomnet.Load(path, spec.ID, in, out)
	}
	return nil, fmt.Errorf("unknown model kind %q", spec.Kind)
}

// #endregion fixture-models

// #region run-fixture

// RunFixture replays the fixture on a fresh host device and compares every
// expected result. It returns the results, the summary and any mismatches.
func RunFixture(ctx context.Context, f *Fixture) ([]Result, Summary, []Mismatch, error) {
	p, err := f.BuildPipeline(device.NewHost(0))
	if err != nil {
		return nil, Summary{}, nil, err
	}
	defer p.Close()

	frames := make([]Frame, len(f.Frames))
	for i := range f.Frames {
		frames[i] = f.Frames[i].ToFrame()
	}
	results := Run(ctx, p, frames)
	summary := Summarize(results, p)

	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.FrameID] = r
	}
	var mismatches []Mismatch
	for _, exp := range f.Expected {
		got, ok := byID[exp.FrameID]
		if !ok || got.Outcome != exp.Outcome || (exp.Action != nil && !slices.Equal(got.Action, exp.Action)) {
			mismatches = append(mismatches, Mismatch{FrameID: exp.FrameID, Expected: exp, Got: got})
		}
	}
	return results, summary, mismatches, nil
}

// #endregion run-fixture
