package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/discretize"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/history"
)

// #region pipeline-struct

// Pipeline runs encoder → transition → controller once per tick and owns the
// hidden state carried between ticks. It is single-owner and not safe for
// concurrent use; run one Pipeline per agent.
type Pipeline struct {
	cfg        Config
	encoder    *executor.Executor
	transition *executor.Executor
	controller *executor.Executor

	hidden  []float32
	history *history.Ring[[]float32]

	// fixed by the first successful tick
	obsDim    int
	ctxDim    int
	actionDim int

	ticks  uint64
	last   Step
	closed bool
}

// #endregion pipeline-struct

// #region constructor

// New builds the three stage executors on dev. If any executor cannot be
// built, the ones already built are disposed.
func New(cfg Config, dev device.Device, models Models) (*Pipeline, error) {
	if cfg.LatentDim <= 0 || cfg.HiddenDim <= 0 {
		return nil, fmt.Errorf("new pipeline: latent=%d hidden=%d: %w", cfg.LatentDim, cfg.HiddenDim, ErrDimensionMismatch)
	}
	if cfg.ActionDim < 0 {
		return nil, fmt.Errorf("new pipeline: action=%d: %w", cfg.ActionDim, ErrDimensionMismatch)
	}

	stages := []struct {
		stage executor.Stage
		model executor.Model
	}{
		{executor.StageEncoder, models.Encoder},
		{executor.StageTransition, models.Transition},
		{executor.StageController, models.Controller},
	}
	built := make([]*executor.Executor, 0, len(stages))
	for _, s := range stages {
		ex, err := executor.New(s.stage, s.model, dev)
		if err != nil {
			for _, b := range built {
				b.Dispose()
			}
			return nil, fmt.Errorf("build %s executor: %w", s.stage, err)
		}
		built = append(built, ex)
	}

	return &Pipeline{
		cfg:        cfg,
		encoder:    built[0],
		transition: built[1],
		controller: built[2],
		hidden:     make([]float32, cfg.HiddenDim),
		history:    history.New[[]float32](cfg.HistoryCapacity),
		actionDim:  cfg.ActionDim,
	}, nil
}

// #endregion constructor

// #region stages

// Encode runs the encoder stage.
func (p *Pipeline) Encode(ctx context.Context, observation, contextVec []float32) ([]float32, error) {
	out, err := p.encoder.Execute(ctx, map[string][]float32{
		executor.InputObservation: observation,
		executor.InputContext:     contextVec,
	})
	if err != nil {
		return nil, err
	}
	latent := out[executor.OutputLatentState]
	if len(latent) != p.cfg.LatentDim {
		return nil, shapeError(executor.StageEncoder, executor.OutputLatentState, len(latent), p.cfg.LatentDim)
	}
	return latent, nil
}

// Transition runs the transition stage on the current latent and the given
// hidden state. predicted is nil when the stage does not emit one.
func (p *Pipeline) Transition(ctx context.Context, latent, hidden, contextVec []float32) (next, predicted []float32, err error) {
	out, err := p.transition.Execute(ctx, map[string][]float32{
		executor.InputLatent:  latent,
		executor.InputHidden:  hidden,
		executor.InputContext: contextVec,
	})
	if err != nil {
		return nil, nil, err
	}
	next = out[executor.OutputHiddenState]
	if len(next) != p.cfg.HiddenDim {
		return nil, nil, shapeError(executor.StageTransition, executor.OutputHiddenState, len(next), p.cfg.HiddenDim)
	}
	return next, out[executor.OutputPredictedLatent], nil
}

// Control runs the controller stage on the current latent and updated hidden state.
func (p *Pipeline) Control(ctx context.Context, latent, hidden, contextVec []float32) ([]float32, error) {
	out, err := p.controller.Execute(ctx, map[string][]float32{
		executor.InputLatent:  latent,
		executor.InputHidden:  hidden,
		executor.InputContext: contextVec,
	})
	if err != nil {
		return nil, err
	}
	action := out[executor.OutputAction]
	if len(action) == 0 || (p.actionDim > 0 && len(action) != p.actionDim) {
		return nil, shapeError(executor.StageController, executor.OutputAction, len(action), p.actionDim)
	}
	return action, nil
}

func shapeError(stage executor.Stage, output string, got, want int) error {
	return &executor.StageError{
		Stage: stage,
		Err:   fmt.Errorf("%s width %d, want %d: %w", output, got, want, ErrDimensionMismatch),
	}
}

// #endregion stages

// #region tick

// Tick runs the three stages and returns the discrete action. Hidden state
// and history are only updated once every stage has succeeded; on error
// both are left exactly as they were.
func (p *Pipeline) Tick(ctx context.Context, observation, contextVec []float32) ([]int, error) {
	if p.closed {
		return nil, fmt.Errorf("tick: %w", executor.ErrUseAfterDispose)
	}
	if err := p.checkInputs(observation, contextVec); err != nil {
		return nil, err
	}

	latent, err := p.Encode(ctx, observation, contextVec)
	if err != nil {
		return nil, err
	}
	next, predicted, err := p.Transition(ctx, latent, p.hidden, contextVec)
	if err != nil {
		return nil, err
	}
	action, err := p.Control(ctx, latent, next, contextVec)
	if err != nil {
		return nil, err
	}
	discrete := discretize.Round(action)

	p.hidden = next
	p.history.Push(slices.Clone(observation))
	if p.obsDim == 0 {
		p.obsDim, p.ctxDim = len(observation), len(contextVec)
	}
	if p.actionDim == 0 {
		p.actionDim = len(action)
	}
	p.ticks++
	p.last = Step{
		Tick:            p.ticks,
		Latent:          latent,
		PredictedLatent: predicted,
		Action:          action,
		Discrete:        discrete,
	}
	return slices.Clone(discrete), nil
}

func (p *Pipeline) checkInputs(observation, contextVec []float32) error {
	if len(observation) == 0 || len(contextVec) == 0 {
		return fmt.Errorf("tick: empty observation or context: %w", ErrDimensionMismatch)
	}
	if p.obsDim != 0 && len(observation) != p.obsDim {
		return fmt.Errorf("tick: observation width %d, want %d: %w", len(observation), p.obsDim, ErrDimensionMismatch)
	}
	if p.ctxDim != 0 && len(contextVec) != p.ctxDim {
		return fmt.Errorf("tick: context width %d, want %d: %w", len(contextVec), p.ctxDim, ErrDimensionMismatch)
	}
	return nil
}

// #endregion tick

// #region accessors

// Hidden returns a copy of the carried hidden state.
func (p *Pipeline) Hidden() []float32 {
	return slices.Clone(p.hidden)
}

// RestoreHidden replaces the hidden state, e.g. from a checkpoint.
func (p *Pipeline) RestoreHidden(h []float32) error {
	if len(h) != p.cfg.HiddenDim {
		return fmt.Errorf("restore hidden: width %d, want %d: %w", len(h), p.cfg.HiddenDim, ErrDimensionMismatch)
	}
	p.hidden = slices.Clone(h)
	return nil
}

// Resume restores hidden and continues tick numbering after tick, so a
// resumed agent never reuses tick numbers from an earlier session.
func (p *Pipeline) Resume(hidden []float32, tick uint64) error {
	if err := p.RestoreHidden(hidden); err != nil {
		return err
	}
	p.ticks = tick
	return nil
}

// History returns copies of the recorded observations, oldest first.
func (p *Pipeline) History() [][]float32 {
	items := p.history.Items()
	for i, obs := range items {
		items[i] = slices.Clone(obs)
	}
	return items
}

// LastStep returns the intermediate vectors of the most recent successful tick.
func (p *Pipeline) LastStep() Step {
	s := p.last
	s.Latent = slices.Clone(s.Latent)
	s.PredictedLatent = slices.Clone(s.PredictedLatent)
	s.Action = slices.Clone(s.Action)
	s.Discrete = slices.Clone(s.Discrete)
	return s
}

// Ticks returns the number of successful ticks, counted from the tick passed
// to Resume.
func (p *Pipeline) Ticks() uint64 {
	return p.ticks
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// #endregion accessors

// #region close

// Close disposes all three executors. A second call returns
// executor.ErrUseAfterDispose.
func (p *Pipeline) Close() error {
	if p.closed {
		return fmt.Errorf("close pipeline: %w", executor.ErrUseAfterDispose)
	}
	p.closed = true
	return errors.Join(
		p.encoder.Dispose(),
		p.transition.Dispose(),
		p.controller.Dispose(),
	)
}

// #endregion close
