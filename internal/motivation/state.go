package motivation

import (
	"math"
	"sync"
	"time"
)

// #region state-struct

// State is one agent's motivational state. It is safe for concurrent use:
// the scheduler decays it while the world model reads it.
type State struct {
	cfg Config

	mu          sync.Mutex
	emotions    Emotions
	needs       Needs
	personality Personality
}

// NewState creates a state with neutral emotions, mid-level needs and the
// given personality.
func NewState(cfg Config, p Personality) *State {
	return &State{
		cfg: cfg,
		emotions: Emotions{
			Curiosity: 0.5,
		},
		needs: Needs{
			Hunger:  0.2,
			Fatigue: 0.2,
			Social:  0.3,
			Comfort: 0.5,
		},
		personality: Personality{
			Openness:          clamp01(p.Openness),
			Conscientiousness: clamp01(p.Conscientiousness),
			Extraversion:      clamp01(p.Extraversion),
		},
	}
}

// #endregion state-struct

// #region context

// MotivationalContext returns the 12 values the world model consumes:
// emotions, then needs, then personality.
func (s *State) MotivationalContext() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, n, p := s.emotions, s.needs, s.personality
	return []float32{
		float32(e.Happiness), float32(e.Stress), float32(e.Boredom), float32(e.Curiosity), float32(e.Loneliness),
		float32(n.Hunger), float32(n.Fatigue), float32(n.Social), float32(n.Comfort),
		float32(p.Openness), float32(p.Conscientiousness), float32(p.Extraversion),
	}
}

// Snapshot returns copies of the three groups.
func (s *State) Snapshot() (Emotions, Needs, Personality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emotions, s.needs, s.personality
}

// SetNeeds overwrites the needs, clamped to [0,1].
func (s *State) SetNeeds(n Needs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needs = Needs{
		Hunger:  clamp01(n.Hunger),
		Fatigue: clamp01(n.Fatigue),
		Social:  clamp01(n.Social),
		Comfort: clamp01(n.Comfort),
	}
}

// SetEmotions overwrites the emotions, clamped to their ranges.
func (s *State) SetEmotions(e Emotions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emotions = Emotions{
		Happiness:  clamp(e.Happiness, -1, 1),
		Stress:     clamp01(e.Stress),
		Boredom:    clamp01(e.Boredom),
		Curiosity:  clamp01(e.Curiosity),
		Loneliness: clamp01(e.Loneliness),
	}
}

// #endregion context

// #region decay

// Decay advances the state by dt. Needs grow linearly; each emotion relaxes
// exponentially toward a target derived from the needs. Energy is discounted
// by half the hunger level, and personality offsets are added after the base
// targets are clamped.
func (s *State) Decay(dt time.Duration) {
	if dt <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := dt.Seconds()
	n := &s.needs
	n.Hunger = clamp01(n.Hunger + s.cfg.HungerRate*sec)
	n.Fatigue = clamp01(n.Fatigue + s.cfg.FatigueRate*sec)
	n.Social = clamp01(n.Social + s.cfg.SocialRate*sec)
	n.Comfort = clamp01(n.Comfort - s.cfg.ComfortRate*sec)

	p := s.personality
	energy := (1 - n.Fatigue) * (1 - n.Hunger*0.5)

	happiness := clamp(energy*n.Comfort*2-1, -1, 1) + (p.Extraversion-0.5)*0.2
	stress := clamp01(n.Hunger*0.5+n.Fatigue*0.3+(1-n.Comfort)*0.2) - (p.Conscientiousness-0.5)*0.1
	curiosity := clamp01(energy*0.6+0.2) + (p.Openness-0.5)*0.3
	boredom := clamp01(1-curiosity) * 0.6
	loneliness := clamp01(n.Social) + (p.Extraversion-0.5)*0.2

	k := 1.0
	if s.cfg.Relaxation > 0 {
		k = 1 - math.Exp(-sec/s.cfg.Relaxation.Seconds())
	}
	e := &s.emotions
	e.Happiness = clamp(e.Happiness+(happiness-e.Happiness)*k, -1, 1)
	e.Stress = clamp01(e.Stress + (stress-e.Stress)*k)
	e.Curiosity = clamp01(e.Curiosity + (curiosity-e.Curiosity)*k)
	e.Boredom = clamp01(e.Boredom + (boredom-e.Boredom)*k)
	e.Loneliness = clamp01(e.Loneliness + (loneliness-e.Loneliness)*k)
}

// #endregion decay

// #region plan

// ApplyPlan nudges happiness and stress by the sentiment of a plan
// description. A nil classifier uses the keyword heuristic.
func (s *State) ApplyPlan(c Classifier, text string) Sentiment {
	if c == nil {
		c = DefaultClassifier()
	}
	sent := c.Classify(text)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch sent {
	case SentimentPositive:
		s.emotions.Happiness = clamp(s.emotions.Happiness+0.1, -1, 1)
		s.emotions.Stress = clamp01(s.emotions.Stress - 0.05)
	case SentimentNegative:
		s.emotions.Happiness = clamp(s.emotions.Happiness-0.1, -1, 1)
		s.emotions.Stress = clamp01(s.emotions.Stress + 0.1)
	}
	return sent
}

// #endregion plan

// #region helpers

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

// #endregion helpers
