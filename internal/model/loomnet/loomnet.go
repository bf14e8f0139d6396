// Package loomnet runs a stage on a loom network on the CPU.
package loomnet

import (
	"context"
	"fmt"
	"slices"

	"github.com/openfluke/loom/nn"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/model"
)

// #region types

// Port names one tensor and its flat width.
type Port struct {
	Name  string
	Width int
}

// Dims are the vector widths a pipeline is configured with.
type Dims struct {
	Observation int
	Context     int
	Latent      int
	Hidden      int
	Action      int
}

// Network is a stage backed by a single loom network. The network input is the
// concatenation of the input ports in declared order; the network output is
// split into the output ports in declared order.
type Network struct {
	net     *nn.Network
	inputs  []Port
	outputs []Port
}

// #endregion types

// #region ports

// StagePorts returns the input and output ports a stage network must expose.
// The transition network emits hidden_state followed by predicted_latent.
func StagePorts(stage executor.Stage, d Dims) (in, out []Port, err error) {
	switch stage {
	case executor.StageEncoder:
		in = []Port{{executor.InputObservation, d.Observation}, {executor.InputContext, d.Context}}
		out = []Port{{executor.OutputLatentState, d.Latent}}
	case executor.StageTransition:
		in = []Port{{executor.InputLatent, d.Latent}, {executor.InputHidden, d.Hidden}, {executor.InputContext, d.Context}}
		out = []Port{{executor.OutputHiddenState, d.Hidden}, {executor.OutputPredictedLatent, d.Latent}}
	case executor.StageController:
		in = []Port{{executor.InputLatent, d.Latent}, {executor.InputHidden, d.Hidden}, {executor.InputContext, d.Context}}
		out = []Port{{executor.OutputAction, d.Action}}
	default:
		return nil, nil, fmt.Errorf("stage ports %q: %w", stage, executor.ErrUnknownStageType)
	}
	return in, out, nil
}

func width(ports []Port) int {
	n := 0
	for _, p := range ports {
		n += p.Width
	}
	return n
}

// #endregion ports

// #region constructors

// New wraps an existing loom network.
func New(net *nn.Network, inputs, outputs []Port) (*Network, error) {
	if net == nil {
		return nil, fmt.Errorf("loomnet: nil network")
	}
	for _, p := range append(slices.Clone(inputs), outputs...) {
		if p.Width <= 0 {
			return nil, fmt.Errorf("loomnet: port %s has width %d", p.Name, p.Width)
		}
	}
	return &Network{net: net, inputs: slices.Clone(inputs), outputs: slices.Clone(outputs)}, nil
}

// NewDense builds an untrained two-layer network sized for the given ports.
// Used for headless runs before trained artifacts exist.
func NewDense(inputs, outputs []Port, hiddenWidth int) (*Network, error) {
	in, out := width(inputs), width(outputs)
	if hiddenWidth <= 0 {
		hiddenWidth = in
	}
	net := nn.NewNetwork(in, 1, 1, 2)
	net.BatchSize = 1
	net.SetLayer(0, 0, 0, nn.InitDenseLayer(in, hiddenWidth, nn.ActivationLeakyReLU))
	net.SetLayer(0, 0, 1, nn.InitDenseLayer(hiddenWidth, out, nn.ActivationTanh))
	net.InitializeWeights()
	return New(net, inputs, outputs)
}

// Load reads a trained network saved with loom's JSON model format.
func Load(path, id string, inputs, outputs []Port) (*Network, error) {
	net, err := nn.LoadModel(path, id)
	if err != nil {
		return nil, fmt.Errorf("load model %s (%s): %w", path, id, err)
	}
	return New(net, inputs, outputs)
}

// Save writes the network to path in loom's JSON model format.
func (n *Network) Save(path, id string) error {
	if err := n.net.SaveModel(path, id); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	return nil
}

// #endregion constructors

// #region forward

// Accepts reports whether name is a declared input port.
func (n *Network) Accepts(name string) bool {
	return slices.ContainsFunc(n.inputs, func(p Port) bool { return p.Name == name })
}

// Forward concatenates the input ports, runs the network on the CPU and
// splits the result into output buffers.
func (n *Network) Forward(ctx context.Context, dev device.Device, in map[string]*device.Buffer) (outs map[string]*device.Buffer, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vals, err := model.ReadInputs(in)
	if err != nil {
		return nil, err
	}

	x := make([]float32, 0, width(n.inputs))
	for _, p := range n.inputs {
		v, ok := vals[p.Name]
		if !ok {
			return nil, fmt.Errorf("missing input %q", p.Name)
		}
		if len(v) != p.Width {
			return nil, fmt.Errorf("input %q: width %d, want %d", p.Name, len(v), p.Width)
		}
		x = append(x, v...)
	}

	y, err := n.forward(x)
	if err != nil {
		return nil, err
	}
	if len(y) != width(n.outputs) {
		return nil, fmt.Errorf("network output width %d, want %d", len(y), width(n.outputs))
	}

	split := make(map[string][]float32, len(n.outputs))
	off := 0
	for _, p := range n.outputs {
		split[p.Name] = y[off : off+p.Width]
		off += p.Width
	}
	return model.AllocOutputs(dev, split)
}

// forward converts a panic inside the network (malformed weights, layer size
// mismatch) into an error.
func (n *Network) forward(x []float32) (y []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loom forward: %v", r)
		}
	}()
	y, _ = n.net.ForwardCPU(x)
	return y, nil
}

// #endregion forward
