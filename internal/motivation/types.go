// Package motivation keeps the agent's decaying emotional and needs state and
// exposes it to the world model as a 12-element motivational context.
package motivation

import (
	"errors"
	"time"
)

// #region state

// Emotions are the five fast-moving affect scalars.
// Happiness is in [-1,1]; the rest are in [0,1].
type Emotions struct {
	Happiness  float64 `yaml:"happiness" json:"happiness"`
	Stress     float64 `yaml:"stress" json:"stress"`
	Boredom    float64 `yaml:"boredom" json:"boredom"`
	Curiosity  float64 `yaml:"curiosity" json:"curiosity"`
	Loneliness float64 `yaml:"loneliness" json:"loneliness"`
}

// Needs are the four physiological and social drives, all in [0,1].
// Higher means more pressing.
type Needs struct {
	Hunger  float64 `yaml:"hunger" json:"hunger"`
	Fatigue float64 `yaml:"fatigue" json:"fatigue"`
	Social  float64 `yaml:"social" json:"social"`
	Comfort float64 `yaml:"comfort" json:"comfort"`
}

// Personality is fixed per agent, all in [0,1].
type Personality struct {
	Openness          float64 `yaml:"openness" json:"openness"`
	Conscientiousness float64 `yaml:"conscientiousness" json:"conscientiousness"`
	Extraversion      float64 `yaml:"extraversion" json:"extraversion"`
}

// #endregion state

// #region config

// Config tunes how fast the state drifts.
type Config struct {
	// Relaxation is the time constant emotions use to approach their targets.
	Relaxation time.Duration `yaml:"relaxation"`
	// Per-second growth of each need while unattended.
	HungerRate  float64 `yaml:"hunger_rate"`
	FatigueRate float64 `yaml:"fatigue_rate"`
	SocialRate  float64 `yaml:"social_rate"`
	ComfortRate float64 `yaml:"comfort_rate"`
}

// DefaultConfig returns the tuning the agent ships with.
func DefaultConfig() Config {
	return Config{
		Relaxation:  90 * time.Second,
		HungerRate:  1.0 / 1800,
		FatigueRate: 1.0 / 2400,
		SocialRate:  1.0 / 1200,
		ComfortRate: 1.0 / 3600,
	}
}

// #endregion config

// #region sentiment

// Sentiment is the coarse polarity a Classifier assigns to a plan description.
type Sentiment int

const (
	SentimentNeutral Sentiment = iota
	SentimentPositive
	SentimentNegative
)

func (s Sentiment) String() string {
	switch s {
	case SentimentPositive:
		return "positive"
	case SentimentNegative:
		return "negative"
	}
	return "neutral"
}

// #endregion sentiment

// #region errors

var ErrUnknownNeed = errors.New("unknown need")

// #endregion errors
