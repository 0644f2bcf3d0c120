//go:build portaudio

package output

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/audio"
)

const (
	speakerBuilt    = true
	framesPerBuffer = 512
	feedInterval    = 5 * time.Millisecond
)

// SpeakerDevice plays clips on the default PortAudio output.
// Clips are resampled to the stream rate and pushed through a ring buffer
// that the PortAudio callback drains.
type SpeakerDevice struct {
	sampleRate int
	logger     zerolog.Logger
	ring       *audio.RingBuffer

	mu      sync.Mutex
	state   State
	stream  *portaudio.Stream
	done    chan struct{}

	// read by the PortAudio callback, which must never take mu
	current atomic.Pointer[speakerPlayback]
}

type speakerPlayback struct {
	ratio    float64 // clip rate / stream rate
	clipLen  int
	total    int
	consumed atomic.Int64
}

// NewSpeakerDevice creates a suspended speaker device. PortAudio is not
// touched until Resume.
func NewSpeakerDevice(sampleRate int, logger zerolog.Logger) (Device, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid speaker sample rate %d", sampleRate)
	}
	return &SpeakerDevice{
		sampleRate: sampleRate,
		logger:     logger.With().Str("component", "speaker-device").Logger(),
		ring:       audio.NewRingBuffer(sampleRate), // one second
		state:      Suspended,
		done:       make(chan struct{}),
	}, nil
}

// State returns the device state
func (d *SpeakerDevice) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Resume opens and starts the output stream
func (d *SpeakerDevice) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Closed:
		return ErrDeviceClosed
	case Running:
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(d.sampleRate), framesPerBuffer, d.callback)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	d.stream = stream
	d.state = Running
	d.logger.Info().Int("sample_rate", d.sampleRate).Msg("Speaker stream started")
	return nil
}

func (d *SpeakerDevice) callback(out []float32) {
	n := d.ring.ReadFill(out)
	if n == 0 {
		return
	}
	if pb := d.current.Load(); pb != nil {
		pb.consumed.Add(int64(n))
	}
}

// Play resamples the clip and feeds it to the stream
func (d *SpeakerDevice) Play(clip *audio.Clip, onEnded func()) (Playback, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.state == Closed:
		return nil, ErrDeviceClosed
	case d.state == Suspended:
		return nil, ErrDeviceSuspended
	case d.current.Load() != nil:
		return nil, ErrDeviceBusy
	}

	samples := audio.Resample(clip.Samples, clip.SampleRate, d.sampleRate)
	pb := &speakerPlayback{
		ratio:   float64(clip.SampleRate) / float64(d.sampleRate),
		clipLen: clip.Len(),
		total:   len(samples),
	}
	d.current.Store(pb)
	go d.feed(pb, samples, onEnded)
	return pb, nil
}

func (d *SpeakerDevice) feed(pb *speakerPlayback, samples []float32, onEnded func()) {
	ticker := time.NewTicker(feedInterval)
	defer ticker.Stop()

	written := 0
	for {
		if written < len(samples) && d.ring.Space() > 0 {
			written += d.ring.Write(samples[written:])
		}
		if int(pb.consumed.Load()) >= pb.total {
			break
		}
		select {
		case <-d.done:
			return
		case <-ticker.C:
		}
	}

	d.current.CompareAndSwap(pb, nil)

	if onEnded != nil {
		onEnded()
	}
}

// Close stops the stream and releases PortAudio
func (d *SpeakerDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Closed {
		return nil
	}
	wasRunning := d.state == Running
	d.state = Closed
	d.current.Store(nil)
	close(d.done)

	if !wasRunning {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop audio stream")
	}
	if err := d.stream.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close audio stream")
	}
	return portaudio.Terminate()
}

func (p *speakerPlayback) Position() int {
	pos := int(float64(p.consumed.Load()) * p.ratio)
	if pos > p.clipLen {
		pos = p.clipLen
	}
	return pos
}
