//go:build !portaudio

package output

import (
	"github.com/rs/zerolog"
)

const speakerBuilt = false

// NewSpeakerDevice is only available in builds tagged portaudio
func NewSpeakerDevice(sampleRate int, logger zerolog.Logger) (Device, error) {
	return nil, ErrSpeakerUnavailable
}
