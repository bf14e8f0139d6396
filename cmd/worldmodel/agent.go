package main

import (
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/motivation"
)

// #region agent
// simAgent is a headless stand-in for an embodied agent. It feeds the world
// model synthetic perception, exposes its motivation state, and acts on the
// discrete actions it is handed by satisfying the matching need.
type simAgent struct {
	mot              *motivation.State
	perceptionDim    int
	consciousnessDim int
	dayLength        time.Duration
	clock            func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	start   time.Time
	actions map[motivation.Need]int
	ignored int
}

func newSimAgent(mot *motivation.State, perceptionDim, consciousnessDim int, dayLength time.Duration, seed uint64) *simAgent {
	return &simAgent{
		mot:              mot,
		perceptionDim:    perceptionDim,
		consciousnessDim: consciousnessDim,
		dayLength:        dayLength,
		clock:            time.Now,
		rng:              rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		actions:          make(map[motivation.Need]int),
	}
}

func (a *simAgent) phase() float64 {
	now := a.clock()
	if a.start.IsZero() {
		a.start = now
	}
	if a.dayLength <= 0 {
		return 0
	}
	el := now.Sub(a.start).Seconds()
	return math.Mod(el, a.dayLength.Seconds()) / a.dayLength.Seconds()
}
// #endregion agent

// #region sources
// ObservationData returns phase-shifted sine channels with a little noise.
func (a *simAgent) ObservationData() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	ph := a.phase()
	out := make([]float32, a.perceptionDim)
	for i := range out {
		shift := float64(i) / float64(a.perceptionDim)
		v := math.Sin(2*math.Pi*(ph+shift)) + 0.05*a.rng.NormFloat64()
		out[i] = float32(v)
	}
	return out
}

// MotivationalContext forwards to the motivation state.
func (a *simAgent) MotivationalContext() []float32 {
	return a.mot.MotivationalContext()
}

// ConsciousnessState reports [awake, alertness, stress, happiness], padded
// with zeros or truncated to the configured width.
func (a *simAgent) ConsciousnessState() []float32 {
	a.mu.Lock()
	ph := a.phase()
	a.mu.Unlock()

	e, n, _ := a.mot.Snapshot()
	awake := 0.0
	if ph < 2.0/3.0 {
		awake = 1
	}
	base := []float64{awake, 1 - n.Fatigue, e.Stress, e.Happiness}
	out := make([]float32, a.consciousnessDim)
	for i := range out {
		if i < len(base) {
			out[i] = float32(base[i])
		}
	}
	return out
}
// #endregion sources

// #region sink
// RequestAction satisfies the need the action selects. Unmapped actions are
// counted and dropped.
func (a *simAgent) RequestAction(action []int) {
	need, ok := motivation.ActionNeed(action)
	a.mu.Lock()
	defer a.mu.Unlock()
	if !ok {
		a.ignored++
		log.Printf("[AGENT] ignoring unmapped action %v", action)
		return
	}
	if err := a.mot.Satisfy(need); err != nil {
		log.Printf("[AGENT] satisfy %s: %v", need, err)
		return
	}
	a.actions[need]++
	log.Printf("[AGENT] action %v -> %s", action, need)
}

// counts returns how often each need was acted on, plus unmapped actions.
func (a *simAgent) counts() (map[motivation.Need]int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[motivation.Need]int, len(a.actions))
	for k, v := range a.actions {
		out[k] = v
	}
	return out, a.ignored
}
// #endregion sink
