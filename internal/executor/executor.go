package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
)

const tracerName = "github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"

// #region executor-struct

// Executor runs one named stage and owns every buffer fed to or produced by
// it. At most one input buffer and one output buffer is retained per name.
// An Executor is single-owner; callers serialize Execute calls.
type Executor struct {
	stage    Stage
	model    Model
	dev      device.Device
	inputs   map[string]*device.Buffer
	outputs  map[string]*device.Buffer
	disposed bool
}

// #endregion executor-struct

// #region constructor

// New creates an executor for the given stage.
func New(stage Stage, m Model, dev device.Device) (*Executor, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("new executor %q: %w", stage, ErrUnknownStageType)
	}
	if m == nil {
		return nil, fmt.Errorf("new executor %s: nil model", stage)
	}
	if dev == nil {
		return nil, fmt.Errorf("new executor %s: nil device", stage)
	}
	return &Executor{
		stage:   stage,
		model:   m,
		dev:     dev,
		inputs:  make(map[string]*device.Buffer),
		outputs: make(map[string]*device.Buffer),
	}, nil
}

// Stage returns the stage this executor runs.
func (e *Executor) Stage() Stage {
	return e.stage
}

// #endregion constructor

// #region execute

// Execute feeds inputs to the stage, runs it to completion and returns its
// outputs as plain slices. Input names are validated before any buffer is
// touched. A failed run leaves the retained outputs of the previous call
// in place.
func (e *Executor) Execute(ctx context.Context, inputs map[string][]float32) (map[string][]float32, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "stage.execute", trace.WithAttributes(
		attribute.String("stage", string(e.stage)),
	))
	defer span.End()

	out, err := e.execute(ctx, inputs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (e *Executor) execute(ctx context.Context, inputs map[string][]float32) (map[string][]float32, error) {
	if e.disposed {
		return nil, fmt.Errorf("%s execute: %w", e.stage, ErrUseAfterDispose)
	}

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		if !e.model.Accepts(name) {
			return nil, &InputNameError{Stage: e.stage, Name: name}
		}
		names = append(names, name)
	}
	slices.Sort(names)

	feed := make(map[string]*device.Buffer, len(names))
	for _, name := range names {
		// release before alloc so repeated ticks never hold two buffers for a name
		if prev, ok := e.inputs[name]; ok {
			delete(e.inputs, name)
			if err := prev.Release(); err != nil {
				return nil, &StageError{Stage: e.stage, Err: fmt.Errorf("release input %s: %w", name, err)}
			}
		}
		buf, err := e.dev.Alloc(inputs[name])
		if err != nil {
			return nil, &StageError{Stage: e.stage, Err: fmt.Errorf("alloc input %s: %w", name, err)}
		}
		e.inputs[name] = buf
		feed[name] = buf
	}

	produced, err := e.model.Forward(ctx, e.dev, feed)
	if err != nil {
		return nil, &StageError{Stage: e.stage, Err: err}
	}

	result, err := e.readOutputs(produced, feed)
	if err != nil {
		e.releaseProduced(produced, feed)
		return nil, &StageError{Stage: e.stage, Err: err}
	}

	var errs []error
	for _, out := range e.stage.Outputs() {
		buf, ok := produced[out.Name]
		if !ok {
			continue
		}
		if prev, ok := e.outputs[out.Name]; ok {
			errs = append(errs, prev.Release())
		}
		e.outputs[out.Name] = buf
		delete(produced, out.Name)
	}
	// anything left is outside this stage's output contract
	for _, buf := range produced {
		if buf != nil {
			errs = append(errs, buf.Release())
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, &StageError{Stage: e.stage, Err: fmt.Errorf("release outputs: %w", err)}
	}
	return result, nil
}

// readOutputs checks buffer ownership before anything is retained: every
// produced buffer must be fresh and appear under exactly one name.
func (e *Executor) readOutputs(produced, feed map[string]*device.Buffer) (map[string][]float32, error) {
	owned := e.owned(feed)
	seen := make(map[*device.Buffer]string, len(produced))
	for _, name := range slices.Sorted(maps.Keys(produced)) {
		buf := produced[name]
		if buf == nil {
			continue
		}
		if owned[buf] {
			return nil, fmt.Errorf("output %q aliases a buffer the executor already holds", name)
		}
		if prev, ok := seen[buf]; ok {
			return nil, fmt.Errorf("outputs %q and %q share one buffer", prev, name)
		}
		seen[buf] = name
	}

	result := make(map[string][]float32, len(produced))
	for _, out := range e.stage.Outputs() {
		buf, ok := produced[out.Name]
		if !ok || buf == nil {
			if out.Optional {
				delete(produced, out.Name)
				continue
			}
			return nil, fmt.Errorf("missing output %q", out.Name)
		}
		vals, err := buf.Read()
		if err != nil {
			return nil, fmt.Errorf("read output %s: %w", out.Name, err)
		}
		result[out.Name] = vals
	}
	return result, nil
}

// owned returns the buffers fed to this call plus the retained outputs.
func (e *Executor) owned(feed map[string]*device.Buffer) map[*device.Buffer]bool {
	owned := make(map[*device.Buffer]bool, len(feed)+len(e.outputs))
	for _, buf := range feed {
		owned[buf] = true
	}
	for _, buf := range e.outputs {
		owned[buf] = true
	}
	return owned
}

// releaseProduced frees a rejected result, each distinct buffer once.
func (e *Executor) releaseProduced(produced, feed map[string]*device.Buffer) {
	skip := e.owned(feed)
	for _, buf := range produced {
		if buf != nil && !skip[buf] {
			skip[buf] = true
			buf.Release()
		}
	}
}

// #endregion execute

// #region last-output

// LastOutput returns a copy of the retained output under name from the most
// recent successful Execute.
func (e *Executor) LastOutput(name string) ([]float32, bool) {
	if e.disposed {
		return nil, false
	}
	buf, ok := e.outputs[name]
	if !ok {
		return nil, false
	}
	vals, err := buf.Read()
	if err != nil {
		return nil, false
	}
	return vals, true
}

// LiveBuffers returns the number of buffers currently retained.
func (e *Executor) LiveBuffers() int {
	return len(e.inputs) + len(e.outputs)
}

// #endregion last-output

// #region dispose

// Dispose releases every retained buffer and closes the model if it holds
// resources of its own. Only the first call does anything; later calls
// return ErrUseAfterDispose.
func (e *Executor) Dispose() error {
	if e.disposed {
		return fmt.Errorf("%s dispose: %w", e.stage, ErrUseAfterDispose)
	}
	e.disposed = true

	var errs []error
	for name, buf := range e.inputs {
		if err := buf.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release input %s: %w", name, err))
		}
	}
	for name, buf := range e.outputs {
		if err := buf.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release output %s: %w", name, err))
		}
	}
	clear(e.inputs)
	clear(e.outputs)

	if c, ok := e.model.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model: %w", err))
		}
	}
	return errors.Join(errs...)
}

// #endregion dispose
