package compose

import (
	"math"
	"slices"
	"testing"
)

func motivation() []float32 {
	m := make([]float32, MotivationDim)
	for i := range m {
		m[i] = float32(i) / 10
	}
	return m
}

func TestObservationOrderAndLength(t *testing.T) {
	perception := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	consciousness := []float32{-1, -2, -3, -4}
	m := motivation()

	obs := Observation(perception, m, consciousness)
	if len(obs) != ObservationDim(len(perception), len(consciousness)) {
		t.Fatalf("expected length %d, got %d", ObservationDim(8, 4), len(obs))
	}
	if !slices.Equal(obs[:8], perception) {
		t.Errorf("perception must come first: %v", obs[:8])
	}
	if !slices.Equal(obs[8:20], m) {
		t.Errorf("motivation must follow perception: %v", obs[8:20])
	}
	if !slices.Equal(obs[20:], consciousness) {
		t.Errorf("consciousness must come last: %v", obs[20:])
	}
}

func TestObservationDoesNotAlias(t *testing.T) {
	perception := []float32{1, 2}
	obs := Observation(perception, nil, nil)
	obs[0] = 42
	if perception[0] != 1 {
		t.Fatal("Observation must not alias its inputs")
	}
}

func TestContextLayout(t *testing.T) {
	m := motivation()
	c := []float32{0.5, 0.25}
	ctx := Context(0.25, 0.1, m, c)

	if len(ctx) != ContextDim(len(c)) {
		t.Fatalf("expected length %d, got %d", ContextDim(len(c)), len(ctx))
	}
	// sin(2π·0.25) = 1
	if math.Abs(float64(ctx[0])-1) > 1e-6 {
		t.Errorf("expected time signal 1, got %f", ctx[0])
	}
	if math.Abs(float64(ctx[1])-0.1) > 1e-6 {
		t.Errorf("expected tick duration 0.1, got %f", ctx[1])
	}
	if !slices.Equal(ctx[2:14], m) || !slices.Equal(ctx[14:], c) {
		t.Errorf("unexpected state tail %v", ctx[2:])
	}
}

func TestContextPhaseIsPeriodic(t *testing.T) {
	a := Context(0.1, 0, nil, nil)
	b := Context(1.1, 0, nil, nil)
	if math.Abs(float64(a[0]-b[0])) > 1e-5 {
		t.Fatalf("expected periodic time signal, got %f vs %f", a[0], b[0])
	}
}

func TestPure(t *testing.T) {
	p := []float32{0.3, 0.7}
	m := motivation()
	c := []float32{1}
	if !slices.Equal(Observation(p, m, c), Observation(p, m, c)) {
		t.Error("Observation must be deterministic")
	}
	if !slices.Equal(Context(0.4, 0.2, m, c), Context(0.4, 0.2, m, c)) {
		t.Error("Context must be deterministic")
	}
	if slices.Equal(Observation(p, m, c), Observation(c, m, p)) {
		t.Error("Observation must be order-sensitive")
	}
}

func TestMotivationOutOfRange(t *testing.T) {
	m := make([]float32, MotivationDim)
	for i := range m {
		m[i] = 0.5
	}
	m[1], m[2] = 0, 1 // bounds are inclusive
	if bad := MotivationOutOfRange(m); len(bad) != 0 {
		t.Fatalf("expected no violations, got %v", bad)
	}
	m[0] = -0.8 // happiness may be negative
	m[3] = -0.1
	m[11] = 1.5
	m[6] = float32(math.NaN())
	if bad := MotivationOutOfRange(m); !slices.Equal(bad, []int{3, 6, 11}) {
		t.Fatalf("expected violations at [3 6 11], got %v", bad)
	}
	m[0] = -1.2
	if bad := MotivationOutOfRange(m); bad[0] != 0 {
		t.Fatalf("happiness below -1 must be flagged, got %v", bad)
	}
}
