package audio

import (
	"math"

	"github.com/gopxl/beep"
)

// FloatToPCM16 converts float32 samples to 16-bit signed little-endian PCM.
// Values outside [-1, 1] are clipped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// resampleQuality is the beep interpolation window; small values suit
// realtime playback
const resampleQuality = 4

// Resample converts mono samples between rates with beep's resampler. The
// result always holds len(samples)*outputRate/inputRate samples.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 || len(samples) == 0 {
		return samples
	}

	pos := 0
	src := beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := 0
		for n < len(buf) && pos < len(samples) {
			v := float64(samples[pos])
			buf[n] = [2]float64{v, v}
			n++
			pos++
		}
		return n, true
	})
	resampler := beep.Resample(resampleQuality, beep.SampleRate(inputRate), beep.SampleRate(outputRate), src)

	want := int(float64(len(samples)) * float64(outputRate) / float64(inputRate))
	output := make([]float32, 0, want)
	buf := make([][2]float64, 512)
	for len(output) < want {
		n, ok := resampler.Stream(buf)
		for i := 0; i < n && len(output) < want; i++ {
			output = append(output, float32(buf[i][0]))
		}
		if !ok {
			break
		}
	}
	// pad the tail the interpolation window could not reach
	for len(output) < want {
		output = append(output, 0)
	}
	return output
}

// RMS calculates the root mean square of float samples
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
