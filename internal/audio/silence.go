package audio

// DefaultSilenceFloor is the RMS level under which a window counts as silent.
// Roughly -66 dBFS, below the noise floor of the synthesized voices we receive.
const DefaultSilenceFloor = 0.0005

// DetectSilence reports whether a window of samples carries no usable signal
func DetectSilence(samples []float32, floor float64) bool {
	if len(samples) == 0 {
		return true
	}
	return RMS(samples) < floor
}

// SilenceTracker counts consecutive silent windows, so a caller can tell a
// short gap between syllables from the tail of a clip.
type SilenceTracker struct {
	floor   float64
	minRun  int
	run     int
	silence bool
}

// NewSilenceTracker creates a tracker that reports silence after minRun silent windows
func NewSilenceTracker(floor float64, minRun int) *SilenceTracker {
	if floor <= 0 {
		floor = DefaultSilenceFloor
	}
	if minRun < 1 {
		minRun = 1
	}
	return &SilenceTracker{floor: floor, minRun: minRun}
}

// Observe feeds one window and returns whether the tracker is in a silent run
func (t *SilenceTracker) Observe(samples []float32) bool {
	if DetectSilence(samples, t.floor) {
		t.run++
		if t.run >= t.minRun {
			t.silence = true
		}
	} else {
		t.run = 0
		t.silence = false
	}
	return t.silence
}

// Reset clears the run counter
func (t *SilenceTracker) Reset() {
	t.run = 0
	t.silence = false
}
