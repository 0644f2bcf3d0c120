// Package gate holds playback until the first user gesture unlocks audio output.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/output"
)

// ErrUntrustedGesture is returned when an unlock is attempted without a
// gesture minted by an input handler
var ErrUntrustedGesture = errors.New("unlock requires a user gesture")

// Source names the input control that produced a gesture
type Source string

const (
	SourceSubmit  Source = "submit"
	SourceVoice   Source = "voice"
	SourcePointer Source = "pointer"
	SourceKey     Source = "key"
)

// Gesture is proof that a user-originated input event is being handled.
// The zero value is untrusted; only FromInput produces a trusted one.
type Gesture struct {
	source  Source
	at      time.Time
	trusted bool
}

// FromInput mints a gesture. Call it only from the handler of a user input event.
func FromInput(source Source, at time.Time) Gesture {
	return Gesture{source: source, at: at, trusted: true}
}

func (g Gesture) Trusted() bool  { return g.trusted }
func (g Gesture) Source() Source { return g.source }
func (g Gesture) At() time.Time  { return g.at }

// Device is the part of the output device the gate needs
type Device interface {
	State() output.State
	Resume(ctx context.Context) error
}

// Gate is a one-way latch. It starts locked and, once unlocked, stays unlocked
// for the lifetime of the session.
type Gate struct {
	device Device
	logger zerolog.Logger

	mu       sync.Mutex
	unlocked bool
	waiters  []chan struct{}
}

// New creates a locked gate for device
func New(device Device, logger zerolog.Logger) *Gate {
	return &Gate{
		device: device,
		logger: logger.With().Str("component", "gate").Logger(),
	}
}

// RequestUnlock resumes the output device if needed and releases every
// waiter. It is a no-op once the gate is open.
func (g *Gate) RequestUnlock(ctx context.Context, gesture Gesture) error {
	if !gesture.Trusted() {
		return ErrUntrustedGesture
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unlocked {
		return nil
	}

	if g.device.State() != output.Running {
		if err := g.device.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume output device: %w", err)
		}
	}

	g.unlocked = true
	for _, w := range g.waiters {
		close(w)
	}
	released := len(g.waiters)
	g.waiters = nil

	g.logger.Info().
		Str("source", string(gesture.Source())).
		Int("released", released).
		Msg("Audio unlocked")
	return nil
}

// Await returns a channel that is closed once the gate is open
func (g *Gate) Await() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan struct{})
	if g.unlocked {
		close(ch)
		return ch
	}
	g.waiters = append(g.waiters, ch)
	return ch
}

// Unlocked reports whether the gate is open
func (g *Gate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

// Pending returns the number of waiters not yet released
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
