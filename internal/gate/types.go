package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoNonFinite VetoType = "non_finite"
	VetoStateNorm VetoType = "state_norm"
	VetoDelta     VetoType = "delta_norm"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for checkpoint decisions. A zero bound
// disables its check.
type GateConfig struct {
	MaxDeltaNorm float32 `yaml:"max_delta_norm"` // max L2 distance from the parent checkpoint
	MaxStateNorm float32 `yaml:"max_state_norm"` // max L2 norm of the hidden state
}

// DefaultGateConfig returns defaults sized for tanh-bounded hidden states.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxDeltaNorm: 32.0,
		MaxStateNorm: 64.0,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
	SoftScore   float32      // 0-1 stability score (for logging)
}

// #endregion gate-decision
