package playback

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/audio"
	"github.com/lexiqai/avatar-gateway/internal/mouth"
	"github.com/lexiqai/avatar-gateway/internal/output"
	"github.com/lexiqai/avatar-gateway/internal/spectrum"
	"github.com/lexiqai/avatar-gateway/internal/words"
)

// Gate is the unlock latch the player waits on before producing sound
type Gate interface {
	Await() <-chan struct{}
	Pending() int
}

// Scheduler delivers the player's timed events back onto the player's
// goroutine. WaitGate, the Start/Stop methods are only called from that
// goroutine; PostClipEnded may be called from any goroutine.
type Scheduler interface {
	WaitGate(ch <-chan struct{})
	StartTicker()
	StopTicker()
	StartWordInterval(d time.Duration)
	StopWordInterval()
	PostClipEnded(playID uint64)
}

// Renderer receives everything the display shows
type Renderer interface {
	StateChanged(phase Phase, queued int)
	BeginItem(item *Item, hasAudio bool, wordInterval time.Duration)
	AppendWords(item *Item, words []string)
	RenderMouth(item *Item, frame mouth.Frame, state mouth.State)
	EndItem(item *Item, outcome Outcome)
}

// Observer receives playback measurements
type Observer interface {
	ItemEnqueued(depth int)
	GateWaiters(n int)
	GateWaited(d time.Duration)
	MouthSampled(current float64)
	ItemFinished(outcome Outcome)
}

// DecodeFunc turns compressed bytes into a clip
type DecodeFunc func(raw []byte) (*audio.Clip, error)

// Snapshot is a read-only view of the player
type Snapshot struct {
	Phase    Phase
	Queued   int
	ActiveID string
	Cursor   words.Cursor
	Mouth    mouth.State
}

// Player is the playback state machine:
//
//	idle -> awaiting-gate -> decoding -> playing -> flushing -> idle
//
// Decoding jumps straight to flushing when an item has no playable audio.
// All methods must be called from one goroutine.
type Player struct {
	// Collaborators
	gate       Gate
	device     output.Device
	analyser   *spectrum.Analyser
	smoother   *mouth.Smoother
	compositor *mouth.Compositor
	streamer   *words.Streamer
	decode     DecodeFunc
	scheduler  Scheduler
	renderer   Renderer
	observer   Observer

	clock  clock.Clock
	logger zerolog.Logger

	// State
	queue     Queue
	phase     Phase
	draining  bool
	active    *Item
	clip      *audio.Clip
	playback  output.Playback
	playID    uint64
	gateSince time.Time
}

// Options collects the player's collaborators. Gate, Device, Analyser,
// Smoother and Compositor are required.
type Options struct {
	Gate       Gate
	Device     output.Device
	Analyser   *spectrum.Analyser
	Smoother   *mouth.Smoother
	Compositor *mouth.Compositor
	Renderer   Renderer
	Observer   Observer
	Decode     DecodeFunc
	Clock      clock.Clock
	Logger     zerolog.Logger
}

// NewPlayer creates an idle player. A scheduler must be attached with
// SetScheduler before the first Enqueue.
func NewPlayer(opts Options) *Player {
	if opts.Decode == nil {
		opts.Decode = audio.Decode
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Renderer == nil {
		opts.Renderer = nopRenderer{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Player{
		gate:       opts.Gate,
		device:     opts.Device,
		analyser:   opts.Analyser,
		smoother:   opts.Smoother,
		compositor: opts.Compositor,
		streamer:   words.NewStreamer(),
		decode:     opts.Decode,
		renderer:   opts.Renderer,
		observer:   opts.Observer,
		clock:      opts.Clock,
		logger:     opts.Logger.With().Str("component", "player").Logger(),
		phase:      Idle,
	}
}

// SetScheduler attaches the event source
func (p *Player) SetScheduler(s Scheduler) {
	p.scheduler = s
}

// Enqueue appends an item. It never interrupts the active item.
func (p *Player) Enqueue(item *Item) {
	p.queue.Push(item)
	p.observer.ItemEnqueued(p.queue.Len())
	p.logger.Debug().
		Str("item_id", item.ID).
		Int("words", len(item.Words)).
		Int("audio_bytes", len(item.Audio)).
		Int("queued", p.queue.Len()).
		Msg("Item enqueued")

	if p.phase == Idle {
		p.Drain()
	} else {
		p.renderer.StateChanged(p.phase, p.queue.Len())
	}
}

// Drain starts the next item if the player is idle. Calling it while a drain
// is already running, or while an item is active, does nothing.
func (p *Player) Drain() {
	if p.draining {
		return
	}
	p.draining = true
	defer func() { p.draining = false }()

	// Items without audio complete synchronously, so keep pulling until one
	// is left waiting on the gate or the device.
	for p.phase == Idle {
		item := p.queue.Pop()
		if item == nil {
			return
		}
		p.begin(item)
	}
}

func (p *Player) begin(item *Item) {
	p.active = item
	p.gateSince = p.clock.Now()
	p.setPhase(AwaitingGate)

	ch := p.gate.Await()
	select {
	case <-ch:
		p.OnUnlocked()
	default:
		p.logger.Info().Str("item_id", item.ID).Msg("Waiting for user gesture to unlock audio")
		p.observer.GateWaiters(p.gate.Pending())
		p.scheduler.WaitGate(ch)
	}
}

// OnUnlocked decodes and starts the item that was waiting on the gate
func (p *Player) OnUnlocked() {
	if p.phase != AwaitingGate {
		return
	}
	item := p.active
	p.observer.GateWaiters(p.gate.Pending())
	p.observer.GateWaited(p.clock.Since(p.gateSince))
	p.setPhase(Decoding)

	if len(item.Audio) == 0 {
		p.logger.Info().Str("item_id", item.ID).Msg("Item has no audio, showing text")
		p.streamer.Load(item.Words)
		p.renderer.BeginItem(item, false, 0)
		p.complete(OutcomeNoAudio)
		return
	}

	clip, err := p.decode(item.Audio)
	if err != nil {
		p.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to decode audio, showing text only")
		p.streamer.Load(item.Words)
		p.renderer.BeginItem(item, false, 0)
		p.complete(OutcomeDecodeFailed)
		return
	}

	if err := p.analyser.Configure(clip.SampleRate); err != nil {
		// mouth stays closed, audio still plays
		p.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to configure analyser")
	}
	interval, paced := p.streamer.Start(item.Words, clip.Duration())
	p.smoother.Reset()

	p.playID++
	id := p.playID
	pb, err := p.device.Play(clip, func() { p.scheduler.PostClipEnded(id) })
	if err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("Failed to start playback, showing text only")
		p.renderer.BeginItem(item, false, 0)
		p.complete(OutcomeDeviceFailed)
		return
	}

	p.clip = clip
	p.playback = pb
	p.setPhase(Playing)
	p.renderer.BeginItem(item, true, interval)

	p.scheduler.StartTicker()
	if paced {
		p.scheduler.StartWordInterval(interval)
	}

	p.logger.Info().
		Str("item_id", item.ID).
		Dur("duration", clip.Duration()).
		Dur("word_interval", interval).
		Str("format", string(clip.Format)).
		Msg("Playback started")
}

// OnTick advances the mouth one animation frame
func (p *Player) OnTick() {
	if p.phase != Playing {
		return
	}
	level := p.analyser.Level(p.clip.Samples, p.playback.Position())
	state := p.smoother.Step(level)
	frame := p.compositor.Compose(state.Current)

	p.renderer.RenderMouth(p.active, frame, state)
	p.observer.MouthSampled(state.Current)
}

// OnWordInterval reveals one more word
func (p *Player) OnWordInterval() {
	if p.phase != Playing {
		return
	}
	if word, ok := p.streamer.Reveal(); ok {
		p.renderer.AppendWords(p.active, []string{word})
	}
	if p.streamer.Cursor().Done() {
		p.scheduler.StopWordInterval()
	}
}

// OnClipEnded handles natural end of the clip started with playID. It is the
// only way a playing item completes.
func (p *Player) OnClipEnded(playID uint64) {
	if p.phase != Playing || playID != p.playID {
		p.logger.Debug().Uint64("play_id", playID).Msg("Ignoring stale clip end")
		return
	}
	p.complete(OutcomePlayed)
}

// complete is the single continuation that finishes an item and advances
// the queue
func (p *Player) complete(outcome Outcome) {
	item := p.active
	p.setPhase(Flushing)

	p.scheduler.StopTicker()
	p.scheduler.StopWordInterval()

	if rest := p.streamer.Flush(); len(rest) > 0 {
		p.renderer.AppendWords(item, rest)
	}

	p.smoother.Reset()
	p.renderer.RenderMouth(item, p.compositor.Compose(0), mouth.State{})
	p.renderer.EndItem(item, outcome)
	p.observer.ItemFinished(outcome)

	p.logger.Info().
		Str("item_id", item.ID).
		Str("outcome", string(outcome)).
		Int("queued", p.queue.Len()).
		Msg("Item finished")

	p.active = nil
	p.clip = nil
	p.playback = nil
	p.setPhase(Idle)

	p.Drain()
}

func (p *Player) setPhase(phase Phase) {
	if p.phase == phase {
		return
	}
	p.phase = phase
	p.renderer.StateChanged(phase, p.queue.Len())
}

// Snapshot returns the current state
func (p *Player) Snapshot() Snapshot {
	s := Snapshot{
		Phase:  p.phase,
		Queued: p.queue.Len(),
		Cursor: p.streamer.Cursor(),
		Mouth:  p.smoother.State(),
	}
	if p.active != nil {
		s.ActiveID = p.active.ID
	}
	return s
}

type nopRenderer struct{}

func (nopRenderer) StateChanged(Phase, int) {}
func (nopRenderer) BeginItem(*Item, bool, time.Duration) {}
func (nopRenderer) AppendWords(*Item, []string) {}
func (nopRenderer) RenderMouth(*Item, mouth.Frame, mouth.State) {}
func (nopRenderer) EndItem(*Item, Outcome) {}

type nopObserver struct{}

func (nopObserver) ItemEnqueued(int) {}
func (nopObserver) GateWaiters(int) {}
func (nopObserver) GateWaited(time.Duration) {}
func (nopObserver) MouthSampled(float64) {}
func (nopObserver) ItemFinished(Outcome) {}
