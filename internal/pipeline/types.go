package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/history"
)

// #region config

// Config fixes the vector widths of a pipeline for its whole lifetime.
type Config struct {
	LatentDim       int
	HiddenDim       int
	ActionDim       int // 0 accepts any controller width, fixed after the first tick
	HistoryCapacity int
}

// DefaultConfig returns the standard world-model dimensions.
func DefaultConfig() Config {
	return Config{
		LatentDim:       32,
		HiddenDim:       256,
		ActionDim:       0,
		HistoryCapacity: history.DefaultCapacity,
	}
}

// #endregion config

// #region models

// Models are the three stage models a pipeline runs, in tick order.
type Models struct {
	Encoder    executor.Model
	Transition executor.Model
	Controller executor.Model
}

// #endregion models

// #region step

// Step is what a successful tick produced besides the discrete action.
type Step struct {
	Tick            uint64
	Latent          []float32
	PredictedLatent []float32 // nil when the transition stage does not emit one
	Action          []float32
	Discrete        []int
}

// #endregion step

// #region errors

var (
	// ErrDimensionMismatch marks a vector whose length deviates from the
	// pipeline's configuration. It is a configuration error, never adapted to.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrRepeatedFailures is wrapped around a stage failure once the failure
	// streak reaches the configured limit.
	ErrRepeatedFailures = errors.New("repeated inference failures")
)

// #endregion errors

// #region collaborators

// PerceptionSource supplies the raw sensor vector, fixed length per configuration.
type PerceptionSource interface {
	ObservationData() []float32
}

// MotivationSource supplies the 12-element emotional/needs/personality context.
type MotivationSource interface {
	MotivationalContext() []float32
}

// ConsciousnessSource supplies the consciousness state, fixed length per configuration.
type ConsciousnessSource interface {
	ConsciousnessState() []float32
}

// ActionSink receives each tick's discrete action. Fire and forget.
type ActionSink interface {
	RequestAction(action []int)
}

// Journal persists tick outcomes. Optional.
type Journal interface {
	RecordTick(ctx context.Context, rec TickRecord) error
}

// Collaborators bundles everything a WorldModel queries per tick.
type Collaborators struct {
	Perception    PerceptionSource
	Motivation    MotivationSource
	Consciousness ConsciousnessSource
	Sink          ActionSink
	Journal       Journal
}

// #endregion collaborators

// #region tick-record

// Tick outcomes recorded in the journal.
const (
	OutcomeOK           = "ok"
	OutcomeStageFailure = "stage_failure"
	OutcomeConfigError  = "config_error"
)

// TickRecord describes one WorldModel update for the journal.
type TickRecord struct {
	Tick         uint64
	Outcome      string
	Stage        executor.Stage // failing stage, empty on success
	Reason       string
	Action       []int
	Hidden       []float32 // hidden state after the tick
	ClockPhase   float64
	TickDuration float64
	CreatedAt    time.Time
}

// #endregion tick-record

// #region world-config

// WorldConfig controls the per-interval entry point.
type WorldConfig struct {
	Enabled                bool
	DayLength              time.Duration
	MaxConsecutiveFailures int
	Clock                  func() time.Time
}

// DefaultWorldConfig returns an enabled world model with a 24 minute day cycle.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Enabled:                true,
		DayLength:              24 * time.Minute,
		MaxConsecutiveFailures: 5,
		Clock:                  time.Now,
	}
}

// #endregion world-config
