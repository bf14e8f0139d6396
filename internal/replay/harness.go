package replay

import (
	"context"
	"errors"
	"math"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/compose"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"
)

// #region types
// Frame is one recorded tick input.
type Frame struct {
	ID            string
	Perception    []float32
	Motivation    []float32
	Consciousness []float32
	ClockPhase    float64
	TickDuration  float64
}

// Result captures the outcome of replaying one frame.
type Result struct {
	FrameID string
	Tick    uint64 // pipeline tick count after the frame
	Outcome string // pipeline.OutcomeOK | OutcomeStageFailure | OutcomeConfigError
	Stage   executor.Stage
	Reason  string
	Action  []int
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalFrames   int
	OK            int
	StageFailures int
	ConfigErrors  int
	FinalHidden   []float32
	HiddenNorm    float64
}
// #endregion types

// #region replay
// Run feeds frames through p in order, exactly as WorldModel.Update would
// compose them, and records each outcome. A failed frame leaves p's state
// untouched and the run continues with the next one.
func Run(ctx context.Context, p *pipeline.Pipeline, frames []Frame) []Result {
	results := make([]Result, 0, len(frames))
	for _, f := range frames {
		if ctx.Err() != nil {
			break
		}
		res := Result{FrameID: f.ID}

		if len(f.Motivation) != compose.MotivationDim {
			res.Outcome = pipeline.OutcomeConfigError
			res.Reason = pipeline.ErrDimensionMismatch.Error()
			res.Tick = p.Ticks()
			results = append(results, res)
			continue
		}

		obs := compose.Observation(f.Perception, f.Motivation, f.Consciousness)
		ctxVec := compose.Context(f.ClockPhase, f.TickDuration, f.Motivation, f.Consciousness)
		action, err := p.Tick(ctx, obs, ctxVec)
		res.Tick = p.Ticks()
		if err != nil {
			res.Outcome = pipeline.OutcomeConfigError
			var stageErr *executor.StageError
			if errors.As(err, &stageErr) {
				res.Outcome = pipeline.OutcomeStageFailure
				res.Stage = stageErr.Stage
			}
			res.Reason = err.Error()
			results = append(results, res)
			continue
		}
		res.Outcome = pipeline.OutcomeOK
		res.Action = action
		results = append(results, res)
	}
	return results
}

// Summarize computes aggregate stats from replay results and the final
// hidden state of the pipeline they ran on.
func Summarize(results []Result, p *pipeline.Pipeline) Summary {
	s := Summary{TotalFrames: len(results)}
	for _, r := range results {
		switch r.Outcome {
		case pipeline.OutcomeOK:
			s.OK++
		case pipeline.OutcomeStageFailure:
			s.StageFailures++
		case pipeline.OutcomeConfigError:
			s.ConfigErrors++
		}
	}
	if p != nil {
		s.FinalHidden = p.Hidden()
		var sum float64
		for _, v := range s.FinalHidden {
			sum += float64(v) * float64(v)
		}
		s.HiddenNorm = math.Sqrt(sum)
	}
	return s
}
// #endregion replay
