package motivation

import (
	"fmt"
	"strings"
)

// #region need

// Need is a kind of action the agent can take to address its state.
type Need int

const (
	NeedRest Need = iota
	NeedEat
	NeedSocialize
	NeedExplore
	NeedPlay
	NeedWork
	numNeeds
)

var needNames = [numNeeds]string{"rest", "eat", "socialize", "explore", "play", "work"}

// AllNeeds lists every need in enumeration order.
func AllNeeds() []Need {
	out := make([]Need, numNeeds)
	for i := range out {
		out[i] = Need(i)
	}
	return out
}

func (n Need) String() string {
	if n < 0 || n >= numNeeds {
		return fmt.Sprintf("need(%d)", int(n))
	}
	return needNames[n]
}

// ParseNeed maps a configured action name to a Need.
func ParseNeed(name string) (Need, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for i, s := range needNames {
		if s == lower {
			return Need(i), nil
		}
	}
	return 0, fmt.Errorf("need %q: %w", name, ErrUnknownNeed)
}

// #endregion need

// #region weights

type snapshot struct {
	e Emotions
	n Needs
	p Personality
}

// weightFns holds one weighting function per need, sized by the enumeration.
var weightFns = [numNeeds]func(s snapshot) float64{
	NeedRest: func(s snapshot) float64 { return s.n.Fatigue },
	NeedEat:  func(s snapshot) float64 { return s.n.Hunger },
	NeedSocialize: func(s snapshot) float64 {
		return clamp01(max(s.n.Social, s.e.Loneliness) * (0.5 + s.p.Extraversion*0.5))
	},
	NeedExplore: func(s snapshot) float64 {
		return clamp01(s.e.Curiosity * (0.5 + s.p.Openness*0.5))
	},
	NeedPlay: func(s snapshot) float64 { return s.e.Boredom },
	NeedWork: func(s snapshot) float64 {
		return clamp01(s.p.Conscientiousness * (1 - s.n.Fatigue) * (1 - s.e.Stress*0.5))
	},
}

// Weight returns how strongly the agent currently wants n, in [0,1].
func (s *State) Weight(n Need) (float64, error) {
	if n < 0 || n >= numNeeds {
		return 0, fmt.Errorf("weight %v: %w", n, ErrUnknownNeed)
	}
	s.mu.Lock()
	snap := snapshot{s.emotions, s.needs, s.personality}
	s.mu.Unlock()
	return weightFns[n](snap), nil
}

// Weights returns the weight of every need, indexed by Need.
func (s *State) Weights() []float64 {
	s.mu.Lock()
	snap := snapshot{s.emotions, s.needs, s.personality}
	s.mu.Unlock()
	out := make([]float64, numNeeds)
	for i, fn := range weightFns {
		out[i] = fn(snap)
	}
	return out
}

// Strongest returns the need with the highest weight. Ties go to the
// earlier need.
func (s *State) Strongest() Need {
	best, bestW := NeedRest, -1.0
	for i, w := range s.Weights() {
		if w > bestW {
			best, bestW = Need(i), w
		}
	}
	return best
}

// #endregion weights

// #region satisfy

// Satisfy applies the effect of acting on n.
func (s *State) Satisfy(n Need) error {
	if n < 0 || n >= numNeeds {
		return fmt.Errorf("satisfy %v: %w", n, ErrUnknownNeed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, d := &s.emotions, &s.needs
	switch n {
	case NeedRest:
		d.Fatigue = clamp01(d.Fatigue - 0.4)
		d.Comfort = clamp01(d.Comfort + 0.1)
	case NeedEat:
		d.Hunger = clamp01(d.Hunger - 0.5)
		d.Comfort = clamp01(d.Comfort + 0.1)
	case NeedSocialize:
		d.Social = clamp01(d.Social - 0.4)
		e.Loneliness = clamp01(e.Loneliness - 0.3)
		d.Fatigue = clamp01(d.Fatigue + 0.05)
	case NeedExplore:
		e.Curiosity = clamp01(e.Curiosity - 0.3)
		e.Boredom = clamp01(e.Boredom - 0.2)
		d.Fatigue = clamp01(d.Fatigue + 0.1)
	case NeedPlay:
		e.Boredom = clamp01(e.Boredom - 0.4)
		e.Happiness = clamp(e.Happiness+0.1, -1, 1)
		d.Fatigue = clamp01(d.Fatigue + 0.05)
	case NeedWork:
		e.Stress = clamp01(e.Stress + 0.05)
		e.Boredom = clamp01(e.Boredom + 0.1)
		d.Fatigue = clamp01(d.Fatigue + 0.15)
	}
	return nil
}

// #endregion satisfy

// #region action-mapping

// ActionNeed maps a discrete action to the need it addresses. The first
// component selects the need in enumeration order; anything out of range
// maps to nothing.
func ActionNeed(action []int) (Need, bool) {
	if len(action) == 0 {
		return 0, false
	}
	idx := action[0]
	if idx < 0 || idx >= int(numNeeds) {
		return 0, false
	}
	return Need(idx), true
}

// #endregion action-mapping
