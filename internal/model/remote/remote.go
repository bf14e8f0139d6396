// Package remote runs a stage on an external inference service over gRPC.
package remote

import (
	"context"
	"fmt"
	"slices"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/model"
)

// ForwardMethod is the full gRPC method name served by the inference service.
const ForwardMethod = "/worldmodel.v1.StageService/Forward"

// #region stage-struct

// Stage forwards one stage's tensors to the inference service. Requests and
// responses are google.protobuf.Struct messages:
//
//	request:  {"stage": "encoder", "inputs": {"observation": [...], ...}}
//	response: {"outputs": {"latent_state": [...]}}
type Stage struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	stage   executor.Stage
	inputs  []string
	timeout time.Duration
}

// #endregion stage-struct

// #region constructor

// Dial connects to the inference service for one stage. The connection is
// owned by the returned Stage and closed with it.
func Dial(addr string, stage executor.Stage, timeout time.Duration) (*Stage, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("dial %s: %w", stage, executor.ErrUnknownStageType)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	s := NewWithConn(conn, stage, timeout)
	s.closer = conn.Close
	return s, nil
}

// NewWithConn creates a Stage on an existing connection. The caller keeps
// ownership of conn. Used for testing without a real server.
func NewWithConn(conn grpc.ClientConnInterface, stage executor.Stage, timeout time.Duration) *Stage {
	return &Stage{
		conn:    conn,
		stage:   stage,
		inputs:  stage.Inputs(),
		timeout: timeout,
	}
}

// Close shuts down the connection if this Stage dialed it.
func (s *Stage) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// #endregion constructor

// #region forward

// Accepts reports whether name is one of the stage's input tensors.
func (s *Stage) Accepts(name string) bool {
	return slices.Contains(s.inputs, name)
}

// Forward sends the inputs and allocates the returned outputs on dev.
func (s *Stage) Forward(ctx context.Context, dev device.Device, in map[string]*device.Buffer) (map[string]*device.Buffer, error) {
	vals, err := model.ReadInputs(in)
	if err != nil {
		return nil, err
	}
	req, err := encodeRequest(s.stage, vals)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, ForwardMethod, req, resp); err != nil {
		return nil, fmt.Errorf("forward rpc: %w", err)
	}
	outs, err := decodeResponse(resp)
	if err != nil {
		return nil, err
	}
	return model.AllocOutputs(dev, outs)
}

// #endregion forward

// #region codec

func encodeRequest(stage executor.Stage, in map[string][]float32) (*structpb.Struct, error) {
	inputs := make(map[string]any, len(in))
	for name, v := range in {
		list := make([]any, len(v))
		for i, f := range v {
			list[i] = float64(f)
		}
		inputs[name] = list
	}
	req, err := structpb.NewStruct(map[string]any{
		"stage":  string(stage),
		"inputs": inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return req, nil
}

func decodeResponse(resp *structpb.Struct) (map[string][]float32, error) {
	outputs := resp.GetFields()["outputs"].GetStructValue()
	if outputs == nil {
		return nil, fmt.Errorf("decode response: missing outputs")
	}
	out := make(map[string][]float32, len(outputs.GetFields()))
	for name, v := range outputs.GetFields() {
		list := v.GetListValue()
		if list == nil {
			return nil, fmt.Errorf("decode response: output %q is not a list", name)
		}
		vals := make([]float32, len(list.GetValues()))
		for i, item := range list.GetValues() {
			if _, ok := item.GetKind().(*structpb.Value_NumberValue); !ok {
				return nil, fmt.Errorf("decode response: output %q[%d] is not a number", name, i)
			}
			vals[i] = float32(item.GetNumberValue())
		}
		out[name] = vals
	}
	return out, nil
}

// #endregion codec
