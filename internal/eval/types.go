package eval

// #region eval-config
// EvalConfig holds thresholds for checkpoint validation.
type EvalConfig struct {
	MaxHiddenNorm   float32 `yaml:"max_hidden_norm"`  // fail if the hidden L2 norm exceeds this
	SaturationLevel float32 `yaml:"saturation_level"` // |x| at or above this counts as saturated
	MaxSaturation   float32 `yaml:"max_saturation"`   // warn if the saturated fraction rises above this
}

// DefaultEvalConfig returns defaults sized for tanh-bounded hidden states.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxHiddenNorm:   64.0,
		SaturationLevel: 0.99,
		MaxSaturation:   0.5,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float32 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of checkpoint validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// #endregion eval-result
