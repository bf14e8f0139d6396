package gate

import (
	"fmt"
	"math"
)

// #region gate
// Gate evaluates whether a hidden state should be checkpointed or rejected.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks hard vetoes first, then scores stability. parent is the
// previous checkpoint's hidden state, nil when there is none; the delta
// check is skipped when the widths differ.
func (g *Gate) Evaluate(parent, proposed []float32) GateDecision {
	var vetoes []VetoSignal

	// --- Hard veto pass ---

	// 1. Non-finite values never reach storage
	for i, x := range proposed {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoNonFinite,
				Reason: fmt.Sprintf("non-finite value at index %d", i),
			})
			break
		}
	}

	// 2. State norm exceeds cap
	stateNorm := vectorNorm(proposed)
	if g.config.MaxStateNorm > 0 && stateNorm > g.config.MaxStateNorm {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoStateNorm,
			Reason: fmt.Sprintf("state norm %.4f exceeds cap %.4f", stateNorm, g.config.MaxStateNorm),
		})
	}

	// 3. Delta norm exceeds cap
	var deltaNorm float32
	comparable := parent != nil && len(parent) == len(proposed)
	if comparable {
		deltaNorm = vectorNorm(vectorDelta(parent, proposed))
		if g.config.MaxDeltaNorm > 0 && deltaNorm > g.config.MaxDeltaNorm {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoDelta,
				Reason: fmt.Sprintf("delta norm %.4f exceeds cap %.4f", deltaNorm, g.config.MaxDeltaNorm),
			})
		}
	}

	// If any hard vetoes, reject immediately
	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			SoftScore:   0,
		}
	}

	// --- Soft scoring ---
	softScore := computeSoftScore(comparable, deltaNorm, stateNorm, g.config)

	return GateDecision{
		Action:    "commit",
		Reason:    fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		SoftScore: softScore,
	}
}

// #endregion gate

// #region helpers
// vectorDelta computes proposed - old element-wise.
func vectorDelta(old, proposed []float32) []float32 {
	delta := make([]float32, len(proposed))
	for i := range delta {
		delta[i] = proposed[i] - old[i]
	}
	return delta
}

// vectorNorm computes the L2 norm of v.
func vectorNorm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// computeSoftScore produces a 0-1 composite from delta stability and norm
// headroom. Logged, never blocks.
func computeSoftScore(comparable bool, deltaNorm, stateNorm float32, cfg GateConfig) float32 {
	var score float32

	// Delta stability: smaller moves since the parent are steadier (weight 0.6)
	switch {
	case !comparable:
		score += 0.3 // neutral when there is no parent
	case cfg.MaxDeltaNorm > 0:
		score += 0.6 * (1 - deltaNorm/cfg.MaxDeltaNorm)
	case deltaNorm == 0:
		score += 0.6
	}

	// Norm headroom: distance from the cap (weight 0.4)
	if cfg.MaxStateNorm > 0 {
		score += 0.4 * (1 - stateNorm/cfg.MaxStateNorm)
	} else {
		score += 0.2
	}

	return score
}

// #endregion helpers
