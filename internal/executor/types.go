package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
)

// #region stage

// Stage identifies one inference stage of the world model.
type Stage string

const (
	StageEncoder    Stage = "encoder"
	StageTransition Stage = "transition"
	StageController Stage = "controller"
)

// Tensor names shared by the stage contracts.
const (
	InputObservation = "observation"
	InputContext     = "context"
	InputLatent      = "latent"
	InputHidden      = "hidden"

	OutputLatentState     = "latent_state"
	OutputHiddenState     = "hidden_state"
	OutputPredictedLatent = "predicted_latent"
	OutputAction          = "action"
)

// Output describes one named output of a stage.
type Output struct {
	Name     string
	Optional bool
}

var stageOutputs = map[Stage][]Output{
	StageEncoder:    {{Name: OutputLatentState}},
	StageTransition: {{Name: OutputHiddenState}, {Name: OutputPredictedLatent, Optional: true}},
	StageController: {{Name: OutputAction}},
}

var stageInputs = map[Stage][]string{
	StageEncoder:    {InputObservation, InputContext},
	StageTransition: {InputLatent, InputHidden, InputContext},
	StageController: {InputLatent, InputHidden, InputContext},
}

// ParseStage maps a configured stage name to a Stage. "rnn" is accepted for
// the transition stage.
func ParseStage(name string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "encoder":
		return StageEncoder, nil
	case "transition", "rnn":
		return StageTransition, nil
	case "controller":
		return StageController, nil
	}
	return "", fmt.Errorf("stage %q: %w", name, ErrUnknownStageType)
}

// Outputs returns the fixed output set for the stage, or nil if unknown.
func (s Stage) Outputs() []Output {
	return append([]Output(nil), stageOutputs[s]...)
}

// Inputs returns the input tensor names the stage is fed by the pipeline.
func (s Stage) Inputs() []string {
	return append([]string(nil), stageInputs[s]...)
}

// Valid reports whether s is one of the three known stages.
func (s Stage) Valid() bool {
	_, ok := stageOutputs[s]
	return ok
}

// #endregion stage

// #region model

// Model is the opaque inference function behind a stage. Forward reads its
// named input buffers and returns output buffers allocated on dev. On error
// Forward must not leak buffers it allocated.
type Model interface {
	Accepts(name string) bool
	Forward(ctx context.Context, dev device.Device, in map[string]*device.Buffer) (map[string]*device.Buffer, error)
}

// #endregion model

// #region errors

var (
	ErrInvalidInputName      = errors.New("invalid input name")
	ErrUnknownStageType      = errors.New("unknown stage type")
	ErrUseAfterDispose       = errors.New("executor used after dispose")
	ErrInferenceStageFailure = errors.New("inference stage failure")
)

// InputNameError reports a tensor name the stage does not accept.
type InputNameError struct {
	Stage Stage
	Name  string
}

func (e *InputNameError) Error() string {
	return fmt.Sprintf("%s: input %q not accepted: %v", e.Stage, e.Name, ErrInvalidInputName)
}

func (e *InputNameError) Is(target error) bool {
	return target == ErrInvalidInputName
}

// StageError wraps a failure of the underlying model execution with the stage
// that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	return target == ErrInferenceStageFailure
}

// #endregion errors
