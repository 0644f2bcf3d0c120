package playback

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// ErrRunnerStopped is returned when submitting to a runner that has exited
var ErrRunnerStopped = errors.New("playback runner stopped")

// Runner owns the player's goroutine. Every player transition happens inside
// Run, so the pipeline is single-threaded even though gestures, device
// callbacks and timers arrive from other goroutines.
type Runner struct {
	player    *Player
	clock     clock.Clock
	tickEvery time.Duration
	logger    zerolog.Logger

	enqueue chan *Item
	ended   chan uint64
	calls   chan func()
	done    chan struct{}

	// Only touched on the Run goroutine
	gateCh     <-chan struct{}
	ticker     *clock.Ticker
	tickC      <-chan time.Time
	wordTicker *clock.Ticker
	wordC      <-chan time.Time
}

// NewRunner creates a runner ticking the mouth tickRate times per second and
// attaches it to player
func NewRunner(player *Player, clk clock.Clock, tickRate int, logger zerolog.Logger) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	if tickRate <= 0 {
		tickRate = 60
	}

	r := &Runner{
		player:    player,
		clock:     clk,
		tickEvery: time.Second / time.Duration(tickRate),
		logger:    logger.With().Str("component", "playback-runner").Logger(),
		enqueue:   make(chan *Item, 32),
		ended:     make(chan uint64, 4),
		calls:     make(chan func()),
		done:      make(chan struct{}),
	}
	player.SetScheduler(r)
	return r
}

// Enqueue hands an item to the player. Safe for concurrent use.
func (r *Runner) Enqueue(ctx context.Context, item *Item) error {
	select {
	case r.enqueue <- item:
		return nil
	case <-r.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot reads the player state from its goroutine
func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	result := make(chan Snapshot, 1)
	fn := func() { result <- r.player.Snapshot() }

	select {
	case r.calls <- fn:
	case <-r.done:
		return Snapshot{}, ErrRunnerStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return <-result, nil
}

// Run processes events until ctx is done
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.StopTicker()
	defer r.StopWordInterval()

	r.logger.Debug().Dur("tick_every", r.tickEvery).Msg("Playback runner started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("Playback runner stopped")
			return ctx.Err()

		case item := <-r.enqueue:
			r.player.Enqueue(item)

		case <-r.gateCh:
			r.gateCh = nil
			r.player.OnUnlocked()

		case <-r.tickC:
			r.player.OnTick()

		case <-r.wordC:
			r.player.OnWordInterval()

		case id := <-r.ended:
			r.player.OnClipEnded(id)

		case fn := <-r.calls:
			fn()
		}
	}
}

// WaitGate arms the gate case of the loop
func (r *Runner) WaitGate(ch <-chan struct{}) {
	r.gateCh = ch
}

// StartTicker starts the animation tick
func (r *Runner) StartTicker() {
	r.StopTicker()
	r.ticker = r.clock.Ticker(r.tickEvery)
	r.tickC = r.ticker.C
}

// StopTicker stops the animation tick
func (r *Runner) StopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
	r.tickC = nil
}

// StartWordInterval starts the word reveal interval
func (r *Runner) StartWordInterval(d time.Duration) {
	r.StopWordInterval()
	r.wordTicker = r.clock.Ticker(d)
	r.wordC = r.wordTicker.C
}

// StopWordInterval stops the word reveal interval
func (r *Runner) StopWordInterval() {
	if r.wordTicker != nil {
		r.wordTicker.Stop()
		r.wordTicker = nil
	}
	r.wordC = nil
}

// PostClipEnded forwards a device end-of-clip callback to the loop
func (r *Runner) PostClipEnded(playID uint64) {
	select {
	case r.ended <- playID:
	case <-r.done:
	}
}
