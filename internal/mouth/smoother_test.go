package mouth

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSmoother(t *testing.T) *Smoother {
	s, err := NewSmoother(DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"exponent one", Config{Exponent: 1, Gain: 2.2, Attack: 0.45, Release: 0.15}},
		{"exponent zero", Config{Exponent: 0, Gain: 2.2, Attack: 0.45, Release: 0.15}},
		{"release above attack", Config{Exponent: 0.6, Gain: 2.2, Attack: 0.15, Release: 0.45}},
		{"release equals attack", Config{Exponent: 0.6, Gain: 2.2, Attack: 0.3, Release: 0.3}},
		{"attack above one", Config{Exponent: 0.6, Gain: 2.2, Attack: 1.5, Release: 0.15}},
		{"no gain", Config{Exponent: 0.6, Gain: 0, Attack: 0.45, Release: 0.15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestSmoother_AttackStep(t *testing.T) {
	s := newSmoother(t)

	st := s.Step(0.25)
	wantTarget := math.Min(1, math.Pow(0.25, 0.6)*2.2)
	assert.InDelta(t, wantTarget, st.Target, 1e-9)
	assert.InDelta(t, wantTarget*0.45, st.Current, 1e-9)
}

func TestSmoother_ReleaseSlowerThanAttack(t *testing.T) {
	s := newSmoother(t)

	for i := 0; i < 50; i++ {
		s.Step(1)
	}
	require.InDelta(t, 1.0, s.State().Current, 1e-6)

	st := s.Step(0)
	assert.Equal(t, 0.0, st.Target)
	assert.InDelta(t, 0.85, st.Current, 1e-6)
}

func TestSmoother_SaturatesAndStaysInRange(t *testing.T) {
	s := newSmoother(t)

	inputs := []float64{-3, 0, 0.01, 5, math.NaN(), 1, 0.5, 0}
	for _, raw := range inputs {
		st := s.Step(raw)
		assert.GreaterOrEqual(t, st.Current, 0.0)
		assert.LessOrEqual(t, st.Current, 1.0)
		assert.GreaterOrEqual(t, st.Target, 0.0)
		assert.LessOrEqual(t, st.Target, 1.0)
	}
}

func TestSmoother_QuietSpeechIsLifted(t *testing.T) {
	s := newSmoother(t)

	// 0.1 raw becomes a target well above 0.1
	st := s.Step(0.1)
	assert.Greater(t, st.Target, 0.5)
}

func TestSmoother_ZeroMidAttackKeepsEasing(t *testing.T) {
	s := newSmoother(t)
	s.Step(1)
	before := s.State().Current

	st := s.Step(0)
	assert.Less(t, st.Current, before)
	assert.Greater(t, st.Current, 0.0)
}

func TestSmoother_Reset(t *testing.T) {
	s := newSmoother(t)
	s.Step(1)
	s.Reset()
	assert.Equal(t, State{}, s.State())
}
