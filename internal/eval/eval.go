package eval

import (
	"encoding/json"
	"fmt"
	"math"
)

// #region eval-harness
// EvalHarness runs lightweight validation on a hidden state before it is
// checkpointed. Its metrics are stored alongside the checkpoint.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates hidden. Only non-finite values and the norm bound fail the
// run; saturation and mean magnitude are informational.
func (h *EvalHarness) Run(hidden []float32) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	// 1. Finite values
	nonFinite := countNonFinite(hidden)
	metrics = append(metrics, EvalMetric{
		Name:  "non_finite",
		Value: float32(nonFinite),
		Pass:  nonFinite == 0,
	})
	if nonFinite > 0 {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("%d non-finite values", nonFinite))
	}

	// 2. Norm bound
	norm := VectorNorm(hidden)
	normPass := h.config.MaxHiddenNorm <= 0 || norm <= h.config.MaxHiddenNorm
	metrics = append(metrics, EvalMetric{
		Name:  "hidden_norm",
		Value: norm,
		Pass:  normPass,
	})
	if !normPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("hidden norm %.4f exceeds %.4f", norm, h.config.MaxHiddenNorm))
	}

	// 3. Saturation: informational
	sat := saturation(hidden, h.config.SaturationLevel)
	metrics = append(metrics, EvalMetric{
		Name:  "saturation",
		Value: sat,
		Pass:  sat <= h.config.MaxSaturation,
	})

	// 4. Mean magnitude: informational
	metrics = append(metrics, EvalMetric{
		Name:  "mean_abs",
		Value: meanAbs(hidden),
		Pass:  true,
	})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// JSON encodes the result for the checkpoint's metrics column.
func (r EvalResult) JSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal eval result: %w", err)
	}
	return string(data), nil
}

// #endregion eval-harness

// #region helpers
// VectorNorm computes the L2 norm of v. Non-finite entries propagate.
func VectorNorm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

func countNonFinite(v []float32) int {
	n := 0
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			n++
		}
	}
	return n
}

// saturation returns the fraction of entries with |x| >= level.
func saturation(v []float32, level float32) float32 {
	if len(v) == 0 || level <= 0 {
		return 0
	}
	n := 0
	for _, x := range v {
		if float32(math.Abs(float64(x))) >= level {
			n++
		}
	}
	return float32(n) / float32(len(v))
}

func meanAbs(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += math.Abs(float64(x))
	}
	return float32(sum / float64(len(v)))
}

// #endregion helpers
