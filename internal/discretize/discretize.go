// Package discretize turns continuous controller output into discrete commands.
package discretize

import "math"

// Round maps each element to the nearest integer. Ties round away from zero
// (0.5 → 1, -0.5 → -1). NaN maps to 0; values beyond the int32 range saturate.
func Round(action []float32) []int {
	out := make([]int, len(action))
	for i, v := range action {
		f := float64(v)
		switch {
		case math.IsNaN(f):
			out[i] = 0
		case f >= math.MaxInt32:
			out[i] = math.MaxInt32
		case f <= math.MinInt32:
			out[i] = math.MinInt32
		default:
			out[i] = int(math.Round(f))
		}
	}
	return out
}
