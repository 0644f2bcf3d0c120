package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/avatar-gateway/internal/backend"
	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/display"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/output"
	"github.com/lexiqai/avatar-gateway/internal/resilience"
	"github.com/lexiqai/avatar-gateway/internal/session"
	"github.com/lexiqai/avatar-gateway/internal/sprites"
)

const spritesPath = "/sprites/"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("backend_url", cfg.BackendURL).
		Str("output_device", cfg.OutputDevice).
		Int("tick_rate", cfg.TickRate).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Avatar Gateway Service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := loadSprites(cfg, logger)

	breaker := resilience.NewCircuitBreaker("backend", cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second).
		OnStateChange(func(name string, from, to resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(to))
			if to == resilience.StateOpen {
				observability.IncrementCircuitBreakerFailures(name)
			}
			logger.Warn().
				Str("service", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		})

	manager := session.NewManager(session.Config{
		Analyser: cfg.AnalyserConfig(),
		Mouth:    cfg.MouthConfig(),
		TickRate: cfg.TickRate,
		Backend: backend.Options{
			URL:         cfg.BackendURL,
			DialTimeout: cfg.BackendDialTimeoutDuration(),
			Breaker:     breaker,
			Reconnect: &resilience.ReconnectConfig{
				MaxAttempts: cfg.ReconnectMaxAttempts,
				Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
				Multiplier:  2.0,
				MaxBackoff:  30 * time.Second,
			},
			Retry: &resilience.RetryConfig{
				MaxAttempts:       cfg.RetryMaxAttempts,
				InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
				MaxBackoff:        5 * time.Second,
				BackoffMultiplier: 2.0,
				Jitter:            true,
			},
		},
		Display: display.Options{
			SendBuffer:     cfg.DisplaySendBuffer,
			MaxMessageSize: cfg.DisplayMaxMessageKB << 10,
			InputRate:      cfg.DisplayInputRate,
			InputBurst:     cfg.DisplayInputBurst,
		},
		NewDevice:   deviceFactory(cfg),
		Sprites:     store,
		SpritesPath: spritesPath,
	}, logger)

	router := mux.NewRouter()

	// Display websocket
	router.Handle("/display", manager)
	router.HandleFunc("/sessions", manager.ListHandler()).Methods("GET")
	router.HandleFunc("/sessions/{id}", manager.SnapshotHandler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", observability.HealthCheckHandler()).Methods("GET")

	// Readiness endpoint, checks are closures to avoid import cycles
	router.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"backend": func(ctx context.Context) (bool, error) {
			return backend.Probe(ctx, cfg.BackendURL)
		},
		"sprites": func(ctx context.Context) (bool, error) {
			if store.Current() == nil {
				return false, errors.New("no sprite set loaded, serving static face")
			}
			return true, nil
		},
	})).Methods("GET")

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Sprite frames for the display
	router.PathPrefix(spritesPath).Handler(http.StripPrefix(spritesPath, http.FileServer(http.Dir(cfg.SpriteDir))))

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		endpoint := cfg.PublicURL
		if endpoint == "" {
			endpoint = fmt.Sprintf("ws://localhost:%s", cfg.Port)
		}
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", endpoint+"/display").
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if cfg.SpriteWatch {
		watcher, err := sprites.NewWatcher(cfg.AvatarImage, cfg.SpriteDir, cfg.SpriteOptions(), store, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Sprite watcher disabled")
		} else {
			watcher.OnReload(func(set *sprites.Set) {
				observability.RecordSpriteRegeneration(true)
				logger.Info().Int("size", set.Size()).Msg("New sprites apply to sessions started from now on")
			})
			g.Go(func() error {
				// A dead watcher only stops hot reload
				if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("Sprite watcher stopped")
				}
				return nil
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Sessions did not close in time")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info().Msg("Server exited gracefully")
	return nil
}

// loadSprites prepares the sprite set. Any failure leaves the store empty
// and sessions fall back to the static face.
func loadSprites(cfg *config.Config, logger zerolog.Logger) *sprites.Store {
	set, regenerated, err := sprites.Ensure(cfg.AvatarImage, cfg.SpriteDir, cfg.SpriteOptions(), logger)
	if err != nil {
		observability.RecordSpriteRegeneration(false)
		logger.Warn().Err(err).Str("dir", cfg.SpriteDir).Msg("Sprites unavailable, using static face")
		return sprites.NewStore(nil)
	}
	if regenerated {
		observability.RecordSpriteRegeneration(true)
	}
	logger.Info().
		Str("dir", cfg.SpriteDir).
		Int("size", set.Size()).
		Bool("regenerated", regenerated).
		Msg("Sprites loaded")
	return sprites.NewStore(set)
}

func deviceFactory(cfg *config.Config) session.DeviceFactory {
	return func(clk clock.Clock, logger zerolog.Logger) (output.Device, error) {
		if cfg.OutputDevice == "speaker" {
			device, err := output.NewSpeakerDevice(cfg.SpeakerSampleRate, logger)
			if err == nil {
				return device, nil
			}
			logger.Warn().Err(err).Msg("Speaker unavailable, falling back to clock device")
		}
		return output.NewClockDevice(clk, logger), nil
	}
}
