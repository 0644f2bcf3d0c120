// Package mouth turns raw band energy into a smoothed mouth openness and maps
// openness onto the sprite frames.
package mouth

import (
	"fmt"
	"math"
)

// Config shapes the raw-to-target response and the easing rates
type Config struct {
	// Exponent < 1 lifts quiet speech so soft syllables still open the mouth
	Exponent float64
	Gain     float64
	Attack   float64
	Release  float64
}

// DefaultConfig returns the tuned production values
func DefaultConfig() Config {
	return Config{
		Exponent: 0.6,
		Gain:     2.2,
		Attack:   0.45,
		Release:  0.15,
	}
}

// Validate checks 0 < release < attack <= 1 and 0 < exponent < 1
func (c Config) Validate() error {
	if c.Exponent <= 0 || c.Exponent >= 1 {
		return fmt.Errorf("mouth exponent must be in (0, 1), got %v", c.Exponent)
	}
	if c.Gain <= 0 {
		return fmt.Errorf("mouth gain must be positive, got %v", c.Gain)
	}
	if c.Release <= 0 || c.Release >= c.Attack || c.Attack > 1 {
		return fmt.Errorf("mouth rates must satisfy 0 < release < attack <= 1, got release=%v attack=%v", c.Release, c.Attack)
	}
	return nil
}

// State is the mouth openness. Both fields stay in [0, 1].
type State struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}

// Smoother eases Current toward Target, opening fast and closing slowly
type Smoother struct {
	cfg   Config
	state State
}

// NewSmoother creates a smoother with a closed mouth
func NewSmoother(cfg Config) (*Smoother, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Smoother{cfg: cfg}, nil
}

// Step feeds one raw level and returns the new state
func (s *Smoother) Step(raw float64) State {
	target := clamp(math.Pow(clamp(raw), s.cfg.Exponent) * s.cfg.Gain)

	k := s.cfg.Release
	if target > s.state.Current {
		k = s.cfg.Attack
	}

	s.state.Target = target
	s.state.Current = clamp(s.state.Current + (target-s.state.Current)*k)
	return s.state
}

// State returns the current state without stepping
func (s *Smoother) State() State {
	return s.state
}

// Reset closes the mouth
func (s *Smoother) Reset() {
	s.state = State{}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
