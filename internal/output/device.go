// Package output drives the audio output device clips are played through.
package output

import (
	"context"
	"errors"

	"github.com/lexiqai/avatar-gateway/internal/audio"
)

var (
	// ErrDeviceClosed is returned by operations on a closed device
	ErrDeviceClosed = errors.New("output device closed")
	// ErrDeviceSuspended is returned by Play before the device was resumed
	ErrDeviceSuspended = errors.New("output device suspended")
	// ErrDeviceBusy is returned by Play while another clip is still sounding
	ErrDeviceBusy = errors.New("output device busy")
	// ErrSpeakerUnavailable is returned when the binary was built without speaker support
	ErrSpeakerUnavailable = errors.New("speaker output not available in this build")
)

// State is the lifecycle state of an output device
type State int

const (
	Suspended State = iota
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Playback is a clip currently being output
type Playback interface {
	// Position is the index of the clip sample currently at the output
	Position() int
}

// Device is an audio sink. Devices start Suspended and only produce sound
// after Resume, which callers must only invoke in response to a user gesture.
type Device interface {
	State() State
	Resume(ctx context.Context) error
	// Play starts the clip. onEnded fires exactly once, after the last sample
	// has been output, on a goroutine owned by the device.
	Play(clip *audio.Clip, onEnded func()) (Playback, error)
	Close() error
}
