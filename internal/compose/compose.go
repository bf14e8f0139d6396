// Package compose builds the per-tick observation and context vectors.
// The layouts are a contract with every trained stage model.
package compose

import "math"

// LayoutVersion identifies the concatenation order below. Bump it whenever
// the order changes so trained artifacts can be matched to it.
const LayoutVersion = 1

// MotivationDim is the length of the motivational context:
// 5 emotions, 4 needs, 3 personality traits.
const MotivationDim = 12

// MotivationOutOfRange returns the indices of motivational context values
// outside their documented range: happiness (index 0) in [-1, 1], every
// other entry in [0, 1]. NaN is always out of range.
func MotivationOutOfRange(motivation []float32) []int {
	var bad []int
	for i, v := range motivation {
		lo := float32(0)
		if i == 0 {
			lo = -1
		}
		if !(v >= lo && v <= 1) {
			bad = append(bad, i)
		}
	}
	return bad
}

// TimeSlots is the number of leading context entries reserved for time signals.
const TimeSlots = 2

// Observation concatenates perception, motivation and consciousness, in that order.
func Observation(perception, motivation, consciousness []float32) []float32 {
	out := make([]float32, 0, len(perception)+len(motivation)+len(consciousness))
	out = append(out, perception...)
	out = append(out, motivation...)
	out = append(out, consciousness...)
	return out
}

// Context returns [sin(2π·clockPhase), tickDuration, motivation..., consciousness...].
// clockPhase is the fraction of the day cycle elapsed; tickDuration is in seconds.
func Context(clockPhase, tickDuration float64, motivation, consciousness []float32) []float32 {
	out := make([]float32, 0, TimeSlots+len(motivation)+len(consciousness))
	out = append(out, float32(math.Sin(2*math.Pi*clockPhase)), float32(tickDuration))
	out = append(out, motivation...)
	out = append(out, consciousness...)
	return out
}

// ObservationDim is the observation length for the given sub-vector lengths.
func ObservationDim(perception, consciousness int) int {
	return perception + MotivationDim + consciousness
}

// ContextDim is the context length for the given consciousness length.
func ContextDim(consciousness int) int {
	return TimeSlots + MotivationDim + consciousness
}
