// Package display serves the websocket a display surface connects to. It
// turns user input into gate unlocks and backend input, and playback
// callbacks into render events.
package display

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lexiqai/avatar-gateway/internal/backend"
	"github.com/lexiqai/avatar-gateway/internal/gate"
	"github.com/lexiqai/avatar-gateway/internal/mouth"
	"github.com/lexiqai/avatar-gateway/internal/playback"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrClosed is returned by the pumps once the connection has shut down
var ErrClosed = errors.New("display connection closed")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The display is a local kiosk page served from another port
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Upgrade turns an HTTP request into a display websocket
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Unlocker is the session's gesture gate
type Unlocker interface {
	RequestUnlock(ctx context.Context, g gate.Gesture) error
}

// Upstream forwards user input to the backend
type Upstream interface {
	Send(ctx context.Context, in backend.Input) error
}

// Recorder receives display measurements
type Recorder interface {
	RecordUnlock(source string)
	RecordError(errorType, component string)
}

// Options configures a Conn. SendBuffer is the backlog of ordered events
// above which the connection warns that the display is falling behind.
type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	InputRate      float64 // events per second
	InputBurst     int
	Clock          clock.Clock
	Recorder       Recorder
	Logger         zerolog.Logger
}

// Conn is one display connection. It implements playback.Renderer; render
// calls never block the player. Mouth frames are latest-wins: a frame still
// unsent when the next one arrives is replaced. Every other event is queued
// in order and never dropped while the connection is open.
type Conn struct {
	ws       *websocket.Conn
	limiter  *rate.Limiter
	clock    clock.Clock
	recorder Recorder
	logger   zerolog.Logger

	mu      sync.Mutex
	queue   []OutboundEvent
	mouth   *OutboundEvent
	backlog int
	behind  bool
	wake    chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

var _ playback.Renderer = (*Conn)(nil)

// NewConn wraps an upgraded websocket
func NewConn(ws *websocket.Conn, opts Options) *Conn {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 8 << 20
	}
	if opts.InputRate <= 0 {
		opts.InputRate = 10
	}
	if opts.InputBurst <= 0 {
		opts.InputBurst = 20
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	ws.SetReadLimit(opts.MaxMessageSize)

	return &Conn{
		ws:       ws,
		limiter:  rate.NewLimiter(rate.Limit(opts.InputRate), opts.InputBurst),
		clock:    opts.Clock,
		recorder: opts.Recorder,
		logger:   opts.Logger.With().Str("component", "display").Logger(),
		queue:    make([]OutboundEvent, 0, opts.SendBuffer),
		backlog:  opts.SendBuffer,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// ReadPump handles inbound events until the display disconnects or ctx is
// done. Every event is a user gesture: it unlocks the gate before its input
// is forwarded.
func (c *Conn) ReadPump(ctx context.Context, unlocker Unlocker, upstream Upstream) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn().Err(err).Msg("Display read error")
			}
			c.Close()
			return ErrClosed
		}

		if !c.limiter.Allow() {
			c.logger.Warn().Msg("Display input rate exceeded, dropping event")
			c.recorder.RecordError("rate_limited", "display")
			c.Error("rate_limited", "too many input events")
			continue
		}

		var ev InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error().Err(err).Msg("Failed to parse display event")
			c.Error("bad_event", "could not parse event")
			continue
		}

		c.handle(ctx, ev, unlocker, upstream)
	}
}

func (c *Conn) handle(ctx context.Context, ev InboundEvent, unlocker Unlocker, upstream Upstream) {
	var source gate.Source
	switch ev.Type {
	case EventSubmit:
		source = gate.SourceSubmit
	case EventVoice:
		source = gate.SourceVoice
	case EventGesture:
		source = gate.SourcePointer
		if ev.Source == string(gate.SourceKey) {
			source = gate.SourceKey
		}
	default:
		c.logger.Warn().Str("type", ev.Type).Msg("Unknown display event")
		return
	}

	// The gesture exists only for the duration of this handler
	if err := unlocker.RequestUnlock(ctx, gate.FromInput(source, c.clock.Now())); err != nil {
		c.logger.Error().Err(err).Str("source", string(source)).Msg("Failed to unlock audio")
		c.recorder.RecordError("unlock_failed", "display")
		c.Error("unlock_failed", err.Error())
	} else {
		c.recorder.RecordUnlock(string(source))
	}

	var in backend.Input
	switch ev.Type {
	case EventSubmit:
		if ev.Text == "" {
			return
		}
		in = backend.TextInput(ev.Text)
	case EventVoice:
		data, err := base64.StdEncoding.DecodeString(ev.Audio)
		if err != nil || len(data) == 0 {
			c.logger.Warn().Err(err).Msg("Voice event without usable audio")
			c.Error("bad_audio", "recording could not be read")
			return
		}
		in = backend.AudioInput(data, ev.Mime)
	default:
		return
	}

	if err := upstream.Send(ctx, in); err != nil {
		c.logger.Error().Err(err).Str("type", in.Type).Msg("Failed to forward input to backend")
		c.Error("backend_unavailable", "could not reach the assistant")
	}
}

// WritePump serializes outbound events onto the socket and keeps it alive
// with pings. It is the only writer.
func (c *Conn) WritePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.wake:
			for _, ev := range c.pending() {
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteJSON(ev); err != nil {
					c.logger.Warn().Err(err).Str("type", ev.Type).Msg("Display write failed")
					c.Close()
					return ErrClosed
				}
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return ErrClosed
			}

		case <-c.done:
			return ErrClosed

		case <-ctx.Done():
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			c.Close()
			return ctx.Err()
		}
	}
}

// Close tears the socket down. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// Done is closed once the connection has shut down
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// pending takes everything waiting to be written. A held mouth frame is
// always newer than the queued events, so it goes last.
func (c *Conn) pending() []OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.queue
	if c.mouth != nil {
		out = append(out, *c.mouth)
		c.mouth = nil
	}
	c.queue = nil
	c.behind = false
	return out
}

func (c *Conn) emit(ev OutboundEvent) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	if c.mouth != nil {
		// keep the frame ahead of whatever follows it
		c.queue = append(c.queue, *c.mouth)
		c.mouth = nil
	}
	c.queue = append(c.queue, ev)
	lagging := len(c.queue) > c.backlog && !c.behind
	if lagging {
		c.behind = true
	}
	c.mu.Unlock()

	if lagging {
		c.logger.Warn().Int("backlog", c.backlog).Msg("Display is falling behind")
		c.recorder.RecordError("send_backlog", "display")
	}
	c.notify()
}

// emitMouth replaces any mouth frame not yet written
func (c *Conn) emitMouth(ev OutboundEvent) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	c.mouth = &ev
	c.mu.Unlock()
	c.notify()
}

func (c *Conn) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Hello announces the session and its sprite set
func (c *Conn) Hello(sessionID string, sprites *SpriteInfo) {
	c.emit(OutboundEvent{Type: EventHello, SessionID: sessionID, Sprites: sprites})
}

// StateChanged reports a player phase change
func (c *Conn) StateChanged(phase playback.Phase, queued int) {
	c.emit(OutboundEvent{Type: EventState, Phase: phase.String(), Queued: &queued})
}

// BeginItem clears the target area and announces the item
func (c *Conn) BeginItem(item *playback.Item, hasAudio bool, wordInterval time.Duration) {
	c.emit(OutboundEvent{
		Type:       EventItemStart,
		ItemID:     item.ID,
		Target:     item.Target,
		HasAudio:   &hasAudio,
		IntervalMs: wordInterval.Milliseconds(),
		WordCount:  len(item.Words),
	})
}

// AppendWords reveals words in the item's target area
func (c *Conn) AppendWords(item *playback.Item, words []string) {
	c.emit(OutboundEvent{Type: EventWords, ItemID: item.ID, Target: item.Target, Words: words})
}

// RenderMouth draws one animation frame
func (c *Conn) RenderMouth(item *playback.Item, frame mouth.Frame, state mouth.State) {
	c.emitMouth(OutboundEvent{Type: EventMouth, ItemID: item.ID, Target: item.Target, Frame: &frame, Mouth: &state})
}

// EndItem reports how an item finished
func (c *Conn) EndItem(item *playback.Item, outcome playback.Outcome) {
	c.emit(OutboundEvent{Type: EventItemEnd, ItemID: item.ID, Target: item.Target, Outcome: string(outcome)})
}

// Recommendations forwards course cards untouched
func (c *Conn) Recommendations(courses json.RawMessage) {
	c.emit(OutboundEvent{Type: EventRecommendations, Courses: courses})
}

// CollectedInfo forwards the backend's collected profile untouched
func (c *Conn) CollectedInfo(info json.RawMessage) {
	c.emit(OutboundEvent{Type: EventCollectedInfo, CollectedInfo: info})
}

// Error reports a problem the display should show
func (c *Conn) Error(code, message string) {
	c.emit(OutboundEvent{Type: EventError, Code: code, Message: message})
}

type nopRecorder struct{}

func (nopRecorder) RecordUnlock(string)        {}
func (nopRecorder) RecordError(string, string) {}
