package output

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/audio"
)

// ClockDevice is a headless output device. It produces no sound; it advances
// the playback position from a clock so the rest of the pipeline behaves as
// if a speaker were attached.
type ClockDevice struct {
	clock  clock.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	current *clockPlayback
}

type clockPlayback struct {
	clock   clock.Clock
	started time.Time
	clip    *audio.Clip
	timer   *clock.Timer
}

// NewClockDevice creates a suspended device driven by clk
func NewClockDevice(clk clock.Clock, logger zerolog.Logger) *ClockDevice {
	if clk == nil {
		clk = clock.New()
	}
	return &ClockDevice{
		clock:  clk,
		logger: logger.With().Str("component", "clock-device").Logger(),
		state:  Suspended,
	}
}

// State returns the device state
func (d *ClockDevice) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Resume moves the device to Running
func (d *ClockDevice) Resume(ctx context.Context) error {
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
	d.state = Running
	d.logger.Debug().Msg("Output device resumed")
	return nil
}

// Play schedules onEnded for when the clip duration has elapsed
func (d *ClockDevice) Play(clip *audio.Clip, onEnded func()) (Playback, error) {
	d.mu.Lock()
	switch {
	case d.state == Closed:
		d.mu.Unlock()
		return nil, ErrDeviceClosed
	case d.state == Suspended:
		d.mu.Unlock()
		return nil, ErrDeviceSuspended
	case d.current != nil:
		d.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	pb := &clockPlayback{
		clock:   d.clock,
		started: d.clock.Now(),
		clip:    clip,
	}
	d.current = pb
	d.mu.Unlock()

	// A mock clock may fire a zero-length timer before AfterFunc returns,
	// so the lock is not held here.
	timer := d.clock.AfterFunc(clip.Duration(), func() {
		d.finish(pb, onEnded)
	})

	d.mu.Lock()
	pb.timer = timer
	d.mu.Unlock()

	d.logger.Debug().
		Dur("duration", clip.Duration()).
		Int("sample_rate", clip.SampleRate).
		Msg("Clip started")
	return pb, nil
}

func (d *ClockDevice) finish(pb *clockPlayback, onEnded func()) {
	d.mu.Lock()
	if d.current != pb || d.state == Closed {
		d.mu.Unlock()
		return
	}
	d.current = nil
	d.mu.Unlock()

	if onEnded != nil {
		onEnded()
	}
}

// Close stops any pending clip without firing its end callback
func (d *ClockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Closed {
		return nil
	}
	if d.current != nil && d.current.timer != nil {
		d.current.timer.Stop()
	}
	d.current = nil
	d.state = Closed
	return nil
}

func (p *clockPlayback) Position() int {
	elapsed := p.clock.Since(p.started)
	pos := int(elapsed.Seconds() * float64(p.clip.SampleRate))
	if pos > p.clip.Len() {
		pos = p.clip.Len()
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}
