package display

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/avatar-gateway/internal/backend"
	"github.com/lexiqai/avatar-gateway/internal/gate"
	"github.com/lexiqai/avatar-gateway/internal/mouth"
	"github.com/lexiqai/avatar-gateway/internal/playback"
)

type fakeUnlocker struct {
	mu       sync.Mutex
	gestures []gate.Gesture
}

func (u *fakeUnlocker) RequestUnlock(ctx context.Context, g gate.Gesture) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !g.Trusted() {
		return gate.ErrUntrustedGesture
	}
	u.gestures = append(u.gestures, g)
	return nil
}

func (u *fakeUnlocker) sources() []gate.Source {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []gate.Source
	for _, g := range u.gestures {
		out = append(out, g.Source())
	}
	return out
}

type fakeUpstream struct {
	mu     sync.Mutex
	inputs []backend.Input
}

func (u *fakeUpstream) Send(ctx context.Context, in backend.Input) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inputs = append(u.inputs, in)
	return nil
}

func (u *fakeUpstream) sent() []backend.Input {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]backend.Input(nil), u.inputs...)
}

type harness struct {
	conn     *Conn
	client   *websocket.Conn
	unlocker *fakeUnlocker
	upstream *fakeUpstream
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	opts.Logger = zerolog.Nop()

	h := &harness{unlocker: &fakeUnlocker{}, upstream: &fakeUpstream{}}
	ready := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r)
		if err != nil {
			return
		}
		h.conn = NewConn(ws, opts)
		close(ready)

		go h.conn.WritePump(ctx)
		h.conn.ReadPump(ctx, h.unlocker, h.upstream)
	}))

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	<-ready
	h.client = client

	t.Cleanup(func() {
		cancel()
		client.Close()
		srv.Close()
	})
	return h
}

func (h *harness) sendEvent(t *testing.T, ev InboundEvent) {
	t.Helper()
	require.NoError(t, h.client.WriteJSON(ev))
}

func (h *harness) next(t *testing.T) OutboundEvent {
	t.Helper()
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev OutboundEvent
	require.NoError(t, h.client.ReadJSON(&ev))
	return ev
}

func TestConn_SubmitUnlocksThenForwards(t *testing.T) {
	h := newHarness(t, Options{})

	h.sendEvent(t, InboundEvent{Type: EventSubmit, Text: "hello"})

	assert.Eventually(t, func() bool { return len(h.upstream.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []gate.Source{gate.SourceSubmit}, h.unlocker.sources())
	assert.Equal(t, backend.TextInput("hello"), h.upstream.sent()[0])
}

func TestConn_EmptySubmitStillUnlocks(t *testing.T) {
	h := newHarness(t, Options{})

	h.sendEvent(t, InboundEvent{Type: EventSubmit, Text: ""})

	assert.Eventually(t, func() bool { return len(h.unlocker.sources()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.upstream.sent())
}

func TestConn_VoiceForwardsAudio(t *testing.T) {
	h := newHarness(t, Options{})

	audio := base64.StdEncoding.EncodeToString([]byte("webm-bytes"))
	h.sendEvent(t, InboundEvent{Type: EventVoice, Audio: audio, Mime: "audio/ogg"})

	require.Eventually(t, func() bool { return len(h.upstream.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	in := h.upstream.sent()[0]
	assert.Equal(t, backend.TypeAudio, in.Type)
	assert.Equal(t, audio, in.Audio)
	assert.Equal(t, "audio/ogg", in.Mime)
	assert.Equal(t, []gate.Source{gate.SourceVoice}, h.unlocker.sources())
}

func TestConn_VoiceWithBadAudioReportsError(t *testing.T) {
	h := newHarness(t, Options{})

	h.sendEvent(t, InboundEvent{Type: EventVoice, Audio: "%%%"})

	ev := h.next(t)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "bad_audio", ev.Code)
	assert.Empty(t, h.upstream.sent())
	assert.Equal(t, []gate.Source{gate.SourceVoice}, h.unlocker.sources())
}

func TestConn_GestureSources(t *testing.T) {
	h := newHarness(t, Options{})

	h.sendEvent(t, InboundEvent{Type: EventGesture, Source: "pointer"})
	h.sendEvent(t, InboundEvent{Type: EventGesture, Source: "key"})
	h.sendEvent(t, InboundEvent{Type: "nonsense"})

	assert.Eventually(t, func() bool { return len(h.unlocker.sources()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []gate.Source{gate.SourcePointer, gate.SourceKey}, h.unlocker.sources())
	assert.Empty(t, h.upstream.sent())
}

func TestConn_RateLimitDropsEvents(t *testing.T) {
	h := newHarness(t, Options{InputRate: 0.001, InputBurst: 1})

	h.sendEvent(t, InboundEvent{Type: EventGesture})
	h.sendEvent(t, InboundEvent{Type: EventGesture})

	ev := h.next(t)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "rate_limited", ev.Code)
	assert.Len(t, h.unlocker.sources(), 1)
}

func TestConn_RendersPlaybackEvents(t *testing.T) {
	h := newHarness(t, Options{})
	item := playback.NewItem("one two", []byte("x"), "bubble-1")

	h.conn.StateChanged(playback.Playing, 2)
	h.conn.BeginItem(item, true, 250*time.Millisecond)
	h.conn.AppendWords(item, []string{"one"})
	h.conn.RenderMouth(item, mouth.Frame{Base: 2, Overlay: 3, Alpha: 0.5}, mouth.State{Current: 0.5, Target: 0.6})
	h.conn.EndItem(item, playback.OutcomePlayed)

	ev := h.next(t)
	assert.Equal(t, EventState, ev.Type)
	assert.Equal(t, "playing", ev.Phase)
	require.NotNil(t, ev.Queued)
	assert.Equal(t, 2, *ev.Queued)

	ev = h.next(t)
	assert.Equal(t, EventItemStart, ev.Type)
	assert.Equal(t, "bubble-1", ev.Target)
	assert.Equal(t, int64(250), ev.IntervalMs)
	assert.Equal(t, 2, ev.WordCount)
	require.NotNil(t, ev.HasAudio)
	assert.True(t, *ev.HasAudio)

	ev = h.next(t)
	assert.Equal(t, EventWords, ev.Type)
	assert.Equal(t, []string{"one"}, ev.Words)

	ev = h.next(t)
	assert.Equal(t, EventMouth, ev.Type)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, mouth.Frame{Base: 2, Overlay: 3, Alpha: 0.5}, *ev.Frame)

	ev = h.next(t)
	assert.Equal(t, EventItemEnd, ev.Type)
	assert.Equal(t, "played", ev.Outcome)
}

func TestConn_ForwardsBackendPayloadsUntouched(t *testing.T) {
	h := newHarness(t, Options{})

	h.conn.CollectedInfo(json.RawMessage(`{"name":"Ana","level":"beginner"}`))
	h.conn.Recommendations(json.RawMessage(`[{"title":"Go 101"}]`))

	ev := h.next(t)
	assert.Equal(t, EventCollectedInfo, ev.Type)
	assert.JSONEq(t, `{"name":"Ana","level":"beginner"}`, string(ev.CollectedInfo))

	ev = h.next(t)
	assert.Equal(t, EventRecommendations, ev.Type)
	assert.JSONEq(t, `[{"title":"Go 101"}]`, string(ev.Courses))
}

func TestConn_EmitAfterCloseIsDropped(t *testing.T) {
	h := newHarness(t, Options{})
	h.conn.Close()

	// Must not block or panic
	for i := 0; i < 1000; i++ {
		h.conn.Error("x", "y")
	}
	select {
	case <-h.conn.Done():
	default:
		t.Fatal("Expected Done to be closed")
	}
}

type errorLog struct {
	mu     sync.Mutex
	errors []string
}

func (r *errorLog) RecordUnlock(string) {}

func (r *errorLog) RecordError(errorType, component string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, component+"/"+errorType)
}

func (r *errorLog) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

// newStalledConn returns a connection whose writer has not started yet, so
// everything emitted piles up until start is called.
func newStalledConn(t *testing.T, opts Options) (conn *Conn, client *websocket.Conn, start func()) {
	t.Helper()
	opts.Logger = zerolog.Nop()

	ready := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r)
		if err != nil {
			return
		}
		conn = NewConn(ws, opts)
		close(ready)
		<-ctx.Done()
	}))

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	<-ready

	t.Cleanup(func() {
		cancel()
		client.Close()
		srv.Close()
	})
	return conn, client, func() { go conn.WritePump(ctx) }
}

func readEvent(t *testing.T, client *websocket.Conn) OutboundEvent {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev OutboundEvent
	require.NoError(t, client.ReadJSON(&ev))
	return ev
}

func TestConn_MouthFramesCoalesceWithoutLosingTranscript(t *testing.T) {
	conn, client, start := newStalledConn(t, Options{SendBuffer: 4})
	item := playback.NewItem("hello there general kenobi", []byte("x"), "bubble-7")

	for i := 0; i < 10; i++ {
		conn.RenderMouth(item, mouth.Frame{Base: i % mouth.FrameCount, Overlay: -1}, mouth.State{})
	}
	conn.AppendWords(item, item.Words)
	conn.RenderMouth(item, mouth.Closed, mouth.State{})
	conn.EndItem(item, playback.OutcomePlayed)
	start()

	ev := readEvent(t, client)
	assert.Equal(t, EventMouth, ev.Type)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, 9%mouth.FrameCount, ev.Frame.Base, "only the newest flooded frame is sent")

	ev = readEvent(t, client)
	assert.Equal(t, EventWords, ev.Type)
	assert.Equal(t, []string{"hello", "there", "general", "kenobi"}, ev.Words)

	ev = readEvent(t, client)
	assert.Equal(t, EventMouth, ev.Type)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, mouth.Closed, *ev.Frame)

	ev = readEvent(t, client)
	assert.Equal(t, EventItemEnd, ev.Type)
	assert.Equal(t, "played", ev.Outcome)
}

func TestConn_BacklogWarnsButKeepsEveryEvent(t *testing.T) {
	recorder := &errorLog{}
	conn, client, start := newStalledConn(t, Options{SendBuffer: 4, Recorder: recorder})
	item := playback.NewItem("a b c d e f g h i j", []byte("x"), "")

	for _, w := range item.Words {
		conn.AppendWords(item, []string{w})
	}
	start()

	var got []string
	for range item.Words {
		ev := readEvent(t, client)
		require.Equal(t, EventWords, ev.Type)
		got = append(got, ev.Words...)
	}
	assert.Equal(t, item.Words, got)
	assert.Equal(t, []string{"display/send_backlog"}, recorder.recorded())
}
