package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/compose"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/config"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/model/loomnet"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/model/remote"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"
)

// #region dims
var stages = []executor.Stage{executor.StageEncoder, executor.StageTransition, executor.StageController}

func dimsFor(cfg config.Config) loomnet.Dims {
	return loomnet.Dims{
		Observation: compose.ObservationDim(cfg.Agent.PerceptionDim, cfg.Agent.ConsciousnessDim),
		Context:     compose.ContextDim(cfg.Agent.ConsciousnessDim),
		Latent:      cfg.Pipeline.LatentDim,
		Hidden:      cfg.Pipeline.HiddenDim,
		Action:      cfg.Pipeline.ActionDim,
	}
}

func modelPath(dir string, stage executor.Stage) string {
	return filepath.Join(dir, string(stage)+".json")
}
// #endregion dims

// #region build-models
// buildModels creates the three stage models for the configured backend.
// Models that hold connections are closed by their executors on dispose;
// on error here, anything already opened is closed.
func buildModels(cfg config.Config) (pipeline.Models, error) {
	var built []executor.Model
	closeBuilt := func() {
		for _, m := range built {
			if c, ok := m.(interface{ Close() error }); ok {
				c.Close()
			}
		}
	}

	dims := dimsFor(cfg)
	for _, stage := range stages {
		var m executor.Model
		var err error
		switch cfg.Inference.Backend {
		case config.BackendRemote:
			m, err = remote.Dial(cfg.Inference.StageAddr, stage, cfg.Inference.Timeout)
		default:
			m, err = loadLoom(cfg.Inference.ModelDir, stage, dims)
		}
		if err != nil {
			closeBuilt()
			return pipeline.Models{}, err
		}
		built = append(built, m)
	}
	return pipeline.Models{Encoder: built[0], Transition: built[1], Controller: built[2]}, nil
}

func loadLoom(dir string, stage executor.Stage, dims loomnet.Dims) (*loomnet.Network, error) {
	in, out, err := loomnet.StagePorts(stage, dims)
	if err != nil {
		return nil, err
	}
	path := modelPath(dir, stage)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s model %s: %w (run 'worldmodel export-models' first)", stage, path, err)
	}
	return loomnet.Load(path, string(stage), in, out)
}
// #endregion build-models

// #region export
// exportModels writes freshly initialized dense networks for every stage.
func exportModels(cfg config.Config, hiddenWidth int, overwrite bool) ([]string, error) {
	if err := os.MkdirAll(cfg.Inference.ModelDir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	if cfg.Pipeline.ActionDim <= 0 {
		return nil, fmt.Errorf("export needs a fixed pipeline.action_dim, got %d", cfg.Pipeline.ActionDim)
	}
	dims := dimsFor(cfg)
	var written []string
	for _, stage := range stages {
		path := modelPath(cfg.Inference.ModelDir, stage)
		if _, err := os.Stat(path); err == nil && !overwrite {
			return written, fmt.Errorf("%s exists (use --force to overwrite)", path)
		}
		in, out, err := loomnet.StagePorts(stage, dims)
		if err != nil {
			return written, err
		}
		net, err := loomnet.NewDense(in, out, hiddenWidth)
		if err != nil {
			return written, fmt.Errorf("build %s: %w", stage, err)
		}
		if err := net.Save(path, string(stage)); err != nil {
			return written, fmt.Errorf("save %s: %w", stage, err)
		}
		written = append(written, path)
	}
	return written, nil
}
// #endregion export
