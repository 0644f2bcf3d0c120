// Package session ties one display connection to its own gate, player and
// backend link. Sessions share nothing but the sprite store and the backend
// circuit breaker.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/avatar-gateway/internal/audio"
	"github.com/lexiqai/avatar-gateway/internal/backend"
	"github.com/lexiqai/avatar-gateway/internal/display"
	"github.com/lexiqai/avatar-gateway/internal/gate"
	"github.com/lexiqai/avatar-gateway/internal/mouth"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/output"
	"github.com/lexiqai/avatar-gateway/internal/playback"
	"github.com/lexiqai/avatar-gateway/internal/spectrum"
	"github.com/lexiqai/avatar-gateway/internal/sprites"
)

// DeviceFactory opens the output device for a new session
type DeviceFactory func(clk clock.Clock, logger zerolog.Logger) (output.Device, error)

// Config holds what every session is built from
type Config struct {
	Analyser spectrum.Config
	Mouth    mouth.Config
	TickRate int

	Backend backend.Options
	Display display.Options

	NewDevice   DeviceFactory
	Sprites     *sprites.Store
	SpritesPath string // URL prefix the display fetches frames from

	Clock clock.Clock
}

// Session is one connected display and everything that serves it
type Session struct {
	ID string

	gate    *gate.Gate
	device  output.Device
	player  *playback.Player
	runner  *playback.Runner
	backend *backend.Client
	display *display.Conn
	metrics *observability.SessionMetrics
	logger  zerolog.Logger
}

// New builds a session around an upgraded display websocket
func New(ws *websocket.Conn, cfg Config) (*Session, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.NewDevice == nil {
		cfg.NewDevice = func(clk clock.Clock, logger zerolog.Logger) (output.Device, error) {
			return output.NewClockDevice(clk, logger), nil
		}
	}

	id := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(id).With().Str("session_id", id).Logger()
	metrics := observability.NewSessionMetrics(id)

	analyser, err := spectrum.New(cfg.Analyser)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyser: %w", err)
	}
	smoother, err := mouth.NewSmoother(cfg.Mouth)
	if err != nil {
		return nil, fmt.Errorf("failed to create smoother: %w", err)
	}
	device, err := cfg.NewDevice(cfg.Clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open output device: %w", err)
	}

	// The sprite set is fixed for the session's lifetime
	var set *sprites.Set
	if cfg.Sprites != nil {
		set = cfg.Sprites.Current()
	}

	displayOpts := cfg.Display
	displayOpts.Clock = cfg.Clock
	displayOpts.Recorder = metrics
	displayOpts.Logger = logger
	conn := display.NewConn(ws, displayOpts)

	g := gate.New(device, logger)
	player := playback.NewPlayer(playback.Options{
		Gate:       g,
		Device:     device,
		Analyser:   analyser,
		Smoother:   smoother,
		Compositor: mouth.NewCompositor(set != nil),
		Renderer:   conn,
		Observer:   metrics,
		Clock:      cfg.Clock,
		Logger:     logger,
	})

	backendOpts := cfg.Backend
	backendOpts.Recorder = metrics
	backendOpts.Logger = logger

	s := &Session{
		ID:      id,
		gate:    g,
		device:  device,
		player:  player,
		runner:  playback.NewRunner(player, cfg.Clock, cfg.TickRate, logger),
		backend: backend.NewClient(backendOpts),
		display: conn,
		metrics: metrics,
		logger:  logger,
	}

	conn.Hello(id, spriteInfo(set, cfg.SpritesPath))
	return s, nil
}

func spriteInfo(set *sprites.Set, prefix string) *display.SpriteInfo {
	if set == nil {
		return &display.SpriteInfo{Static: true}
	}
	info := &display.SpriteInfo{Version: set.LoadedAt.Unix()}
	for i := 0; i < sprites.FrameCount; i++ {
		info.Frames = append(info.Frames, prefix+sprites.FrameName(i))
	}
	return info
}

// Run serves the session until the display leaves or ctx is done. Backend
// trouble is reported to the display and never ends the session.
func (s *Session) Run(ctx context.Context) error {
	s.metrics.RecordSessionStart()
	s.logger.Info().Msg("Display session started")

	defer func() {
		s.backend.Close()
		if err := s.device.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close output device")
		}
		s.metrics.RecordSessionEnd()
		s.logger.Info().Msg("Display session ended")
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runner.Run(gctx) })
	g.Go(func() error { return s.display.WritePump(gctx) })
	g.Go(func() error { return s.display.ReadPump(gctx, s.gate, s.backend) })
	g.Go(func() error { return s.runBackend(gctx) })

	err := g.Wait()
	if errors.Is(err, display.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) runBackend(ctx context.Context) error {
	if err := s.backend.Dial(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.degrade(ctx, err)
	}

	err := s.backend.Run(ctx, func(msg backend.Message) { s.handleBackend(ctx, msg) })
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.degrade(ctx, err)
}

// degrade keeps the session alive without a backend so queued items still play
func (s *Session) degrade(ctx context.Context, err error) error {
	s.logger.Error().Err(err).Msg("Backend unavailable")
	s.metrics.RecordError("backend_unavailable", "session")
	s.display.Error("backend_unavailable", "the assistant is unavailable")
	<-ctx.Done()
	return ctx.Err()
}

func (s *Session) handleBackend(ctx context.Context, msg backend.Message) {
	switch msg.Type {
	case backend.TypeResponse:
		if msg.HasCollectedInfo() {
			s.display.CollectedInfo(msg.CollectedInfo)
		}

		data, err := msg.DecodeAudio()
		if err != nil {
			// Show the text anyway
			s.logger.Warn().Err(err).Msg("Response audio unreadable")
			s.metrics.RecordError("audio_decode_error", "backend")
		}
		if len(data) > 0 {
			s.metrics.RecordAudioBytes(string(audio.SniffFormat(data)), int64(len(data)))
		}

		item := playback.NewItem(msg.Text, data, "")
		if err := s.runner.Enqueue(ctx, item); err != nil {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Dropped response, player stopped")
		}

	case backend.TypeRecommendations:
		s.display.Recommendations(msg.Courses)

	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Ignoring backend message")
	}
}

// Snapshot reads the player state
func (s *Session) Snapshot(ctx context.Context) (playback.Snapshot, error) {
	return s.runner.Snapshot(ctx)
}
