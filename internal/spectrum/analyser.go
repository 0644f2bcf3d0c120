// Package spectrum measures how much of a clip's energy sits in the voice band
// at the current playback position.
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/lexiqai/avatar-gateway/internal/audio"
)

// Config holds the analyser settings. The defaults match a browser
// AnalyserNode with the band tuned to the upstream synthesized voice.
type Config struct {
	FFTSize      int
	Smoothing    float64
	MinDB        float64
	MaxDB        float64
	LowHz        float64
	HighHz       float64
	SilenceFloor float64
}

// DefaultConfig returns the analyser settings used in production
func DefaultConfig() Config {
	return Config{
		FFTSize:      256,
		Smoothing:    0.8,
		MinDB:        -100,
		MaxDB:        -30,
		LowHz:        150,
		HighHz:       1100,
		SilenceFloor: audio.DefaultSilenceFloor,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.FFTSize < 32 || c.FFTSize&(c.FFTSize-1) != 0 {
		return fmt.Errorf("FFT size must be a power of two >= 32, got %d", c.FFTSize)
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return fmt.Errorf("smoothing must be in [0, 1), got %v", c.Smoothing)
	}
	if c.MinDB >= c.MaxDB {
		return fmt.Errorf("min dB (%v) must be below max dB (%v)", c.MinDB, c.MaxDB)
	}
	if c.LowHz < 0 || c.LowHz >= c.HighHz {
		return fmt.Errorf("band [%v, %v] Hz is invalid", c.LowHz, c.HighHz)
	}
	return nil
}

// Analyser reads band energy from a playing clip. Not safe for concurrent use;
// it belongs to the playback loop.
type Analyser struct {
	cfg    Config
	fft    *fourier.FFT
	window []float64

	// scratch
	frame  []float64
	coeffs []complex128

	smoothed []float64
	silence  *audio.SilenceTracker

	sampleRate int
	lo, hi     int
	configured bool
}

// New creates an analyser. Call Configure before reading levels.
func New(cfg Config) (*Analyser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	coeffs := make([]float64, cfg.FFTSize)
	for i := range coeffs {
		coeffs[i] = 1
	}

	return &Analyser{
		cfg:      cfg,
		fft:      fourier.NewFFT(cfg.FFTSize),
		window:   window.Blackman(coeffs),
		frame:    make([]float64, cfg.FFTSize),
		coeffs:   make([]complex128, cfg.FFTSize/2+1),
		smoothed: make([]float64, cfg.FFTSize/2),
		silence:  audio.NewSilenceTracker(cfg.SilenceFloor, 1),
	}, nil
}

// Configure computes the band bin bounds for a clip's sample rate and clears
// the smoothing history. Called once per clip.
func (a *Analyser) Configure(sampleRate int) error {
	if sampleRate <= 0 {
		a.configured = false
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	binHz := float64(sampleRate) / float64(a.cfg.FFTSize)
	bins := a.cfg.FFTSize / 2

	a.lo = int(math.Round(a.cfg.LowHz / binHz))
	a.hi = int(math.Round(a.cfg.HighHz / binHz))
	if a.hi > bins-1 {
		a.hi = bins - 1
	}
	a.sampleRate = sampleRate
	a.configured = true

	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.silence.Reset()
	return nil
}

// Bounds returns the inclusive bin range of the band. Empty when lo > hi.
func (a *Analyser) Bounds() (lo, hi int) {
	return a.lo, a.hi
}

// Level returns the band energy of the FFT window ending at position,
// normalized to [0, 1]. Degenerate input yields 0.
func (a *Analyser) Level(samples []float32, position int) float64 {
	if !a.configured || len(samples) == 0 || position <= 0 || a.lo > a.hi {
		return 0
	}
	if position > len(samples) {
		position = len(samples)
	}

	n := a.cfg.FFTSize
	start := position - n
	src := samples[max(start, 0):position]

	if a.silence.Observe(src) {
		a.decay()
		return 0
	}

	// zero-pad the head when the clip has fewer than n samples behind position
	pad := n - len(src)
	for i := 0; i < pad; i++ {
		a.frame[i] = 0
	}
	for i, s := range src {
		a.frame[pad+i] = float64(s) * a.window[pad+i]
	}

	a.fft.Coefficients(a.coeffs, a.frame)

	tau := a.cfg.Smoothing
	span := a.cfg.MaxDB - a.cfg.MinDB
	sum := 0.0
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / float64(n)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag

		if k < a.lo || k > a.hi {
			continue
		}
		sum += a.normalize(a.smoothed[k], span)
	}

	return clamp(sum / float64(a.hi-a.lo+1))
}

func (a *Analyser) normalize(mag, span float64) float64 {
	if !(mag > 0) {
		return 0
	}
	db := 20 * math.Log10(mag)
	return clamp((db - a.cfg.MinDB) / span)
}

// clamp limits v to [0, 1]; NaN maps to 0
func clamp(v float64) float64 {
	switch {
	case !(v > 0):
		return 0
	case v > 1:
		return 1
	}
	return v
}

func (a *Analyser) decay() {
	for k := range a.smoothed {
		a.smoothed[k] *= a.cfg.Smoothing
	}
}
