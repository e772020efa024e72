// Package escalation implements the multi-turn escalation signal source. It
// looks across the supplied conversation window for gradual drift toward a
// dangerous topic, rising intensity, references back to earlier output and
// persistence after a refusal.
package escalation

import (
	"math"

	"github.com/gzhole/textgate/internal/signal"
)

// Name is the stable source identifier.
const Name = "escalation"

// Rule override keys.
const (
	RuleThreshold         = "threshold"
	RuleWindowSize        = "window_size"
	RuleMinTurns          = "min_turns"
	RuleWeightTopic       = "weight_topic"
	RuleWeightIntensity   = "weight_intensity"
	RuleWeightReference   = "weight_reference"
	RuleWeightPersistence = "weight_persistence"
)

// Weights scale each sub-score in the base score. They should sum to 1.
type Weights struct {
	Topic       float64 `yaml:"topic"`
	Intensity   float64 `yaml:"intensity"`
	Reference   float64 `yaml:"reference"`
	Persistence float64 `yaml:"persistence"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Topic + w.Intensity + w.Reference + w.Persistence
}

// Step is one tier of a stepped boost: Add applies when the input is >= Min.
type Step struct {
	Min float64
	Add float64
}

// Boosts are the additive terms applied after the weighted base.
type Boosts struct {
	// Strongest is applied once, for the highest matching step of the
	// strongest sub-score. Steps are checked in order.
	Strongest []Step
	// PerSignal is added once for every sub-score >= PerSignalMin.
	PerSignalMin float64
	PerSignal    float64
	// Persistence is applied for the highest matching step of persistence.
	Persistence []Step
}

// Config controls the escalation source.
type Config struct {
	Source            signal.SourceConfig
	WindowSize        int
	Threshold         float64
	MinTurns          int
	SingleTurnCeiling float64
	Weights           Weights
	Boosts            Boosts
}

// DefaultWeights returns the default sub-score weights.
func DefaultWeights() Weights {
	return Weights{Topic: 0.25, Intensity: 0.30, Reference: 0.25, Persistence: 0.20}
}

// DefaultBoosts returns the default boost schedule.
func DefaultBoosts() Boosts {
	return Boosts{
		Strongest:    []Step{{0.8, 0.25}, {0.6, 0.15}, {0.4, 0.05}},
		PerSignalMin: 0.5,
		PerSignal:    0.08,
		Persistence:  []Step{{0.6, 0.2}, {0.4, 0.1}},
	}
}

// DefaultConfig returns the default escalation configuration.
func DefaultConfig() Config {
	return Config{
		Source:            signal.DefaultSourceConfig(),
		WindowSize:        10,
		Threshold:         0.55,
		MinTurns:          2,
		SingleTurnCeiling: 0.7,
		Weights:           DefaultWeights(),
		Boosts:            DefaultBoosts(),
	}
}

// Validate rejects values that cannot produce a meaningful score.
func (c Config) Validate() error {
	if err := c.Source.Validate(Name); err != nil {
		return err
	}
	if c.WindowSize < 1 {
		return signal.NewConfigError(Name, "window_size", "must be at least 1, got %d", c.WindowSize)
	}
	if c.MinTurns < 1 {
		return signal.NewConfigError(Name, "min_turns_for_detection", "must be at least 1, got %d", c.MinTurns)
	}
	if !unit(c.Threshold) {
		return signal.NewConfigError(Name, "escalation_threshold", "must be within [0,1], got %v", c.Threshold)
	}
	if !unit(c.SingleTurnCeiling) {
		return signal.NewConfigError(Name, "single_turn_ceiling", "must be within [0,1], got %v", c.SingleTurnCeiling)
	}
	for field, w := range map[string]float64{
		"weights.topic":       c.Weights.Topic,
		"weights.intensity":   c.Weights.Intensity,
		"weights.reference":   c.Weights.Reference,
		"weights.persistence": c.Weights.Persistence,
	} {
		if !unit(w) {
			return signal.NewConfigError(Name, field, "must be within [0,1], got %v", w)
		}
	}
	return nil
}

// WeightsBalanced reports whether the weights sum to 1 within tolerance.
func (c Config) WeightsBalanced() bool {
	return math.Abs(c.Weights.Sum()-1) <= 0.01
}

// withRules applies per-call overrides on top of the configured values.
func (c Config) withRules(rules map[string]any) Config {
	if len(rules) == 0 {
		return c
	}
	c.Threshold = signal.RuleFloat(rules, RuleThreshold, c.Threshold)
	c.WindowSize = signal.RuleInt(rules, RuleWindowSize, c.WindowSize)
	c.MinTurns = signal.RuleInt(rules, RuleMinTurns, c.MinTurns)
	c.Weights.Topic = signal.RuleFloat(rules, RuleWeightTopic, c.Weights.Topic)
	c.Weights.Intensity = signal.RuleFloat(rules, RuleWeightIntensity, c.Weights.Intensity)
	c.Weights.Reference = signal.RuleFloat(rules, RuleWeightReference, c.Weights.Reference)
	c.Weights.Persistence = signal.RuleFloat(rules, RuleWeightPersistence, c.Weights.Persistence)
	if c.WindowSize < 1 {
		c.WindowSize = 1
	}
	if c.MinTurns < 1 {
		c.MinTurns = 1
	}
	return c
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
