// Package model holds stage model implementations and the buffer helpers they share.
package model

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
)

// #region helpers

// ReadInputs copies every input buffer into a plain slice.
func ReadInputs(in map[string]*device.Buffer) (map[string][]float32, error) {
	out := make(map[string][]float32, len(in))
	for name, buf := range in {
		vals, err := buf.Read()
		if err != nil {
			return nil, fmt.Errorf("read input %s: %w", name, err)
		}
		out[name] = vals
	}
	return out, nil
}

// AllocOutputs allocates one buffer per output. If any allocation fails the
// buffers already allocated are released before returning.
func AllocOutputs(dev device.Device, outputs map[string][]float32) (map[string]*device.Buffer, error) {
	bufs := make(map[string]*device.Buffer, len(outputs))
	for name, vals := range outputs {
		buf, err := dev.Alloc(vals)
		if err != nil {
			var errs []error
			for _, b := range bufs {
				errs = append(errs, b.Release())
			}
			return nil, errors.Join(fmt.Errorf("alloc output %s: %w", name, err), errors.Join(errs...))
		}
		bufs[name] = buf
	}
	return bufs, nil
}

// #endregion helpers

// #region func

// Fn computes stage outputs from stage inputs.
type Fn func(ctx context.Context, in map[string][]float32) (map[string][]float32, error)

// Func adapts a plain Go function into a stage model.
type Func struct {
	inputs []string
	fn     Fn
}

// NewFunc creates a Func model that accepts exactly the given input names.
func NewFunc(inputs []string, fn Fn) *Func {
	return &Func{inputs: slices.Clone(inputs), fn: fn}
}

// Accepts reports whether name is one of the declared inputs.
func (f *Func) Accepts(name string) bool {
	return slices.Contains(f.inputs, name)
}

// Forward reads inputs, calls the function and allocates its outputs on dev.
func (f *Func) Forward(ctx context.Context, dev device.Device, in map[string]*device.Buffer) (map[string]*device.Buffer, error) {
	vals, err := ReadInputs(in)
	if err != nil {
		return nil, err
	}
	out, err := f.fn(ctx, vals)
	if err != nil {
		return nil, err
	}
	return AllocOutputs(dev, out)
}

// #endregion func
