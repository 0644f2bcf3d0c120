package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/avatar-gateway/internal/mouth"
	"github.com/lexiqai/avatar-gateway/internal/spectrum"
	"github.com/lexiqai/avatar-gateway/internal/sprites"
)

// Config holds all configuration for the avatar gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service, used only when logging the display endpoint.
	// Optional; if unset, logs ws://localhost:PORT/display.
	PublicURL string `envconfig:"AVATAR_GATEWAY_URL" default:""`

	// Backend conversation service websocket endpoint
	BackendURL         string `envconfig:"BACKEND_URL" required:"true"`
	BackendDialTimeout int    `envconfig:"BACKEND_DIAL_TIMEOUT" default:"10"` // seconds

	// Animation configuration
	TickRate          int     `envconfig:"TICK_RATE" default:"60"` // Mouth frames per second
	FFTSize           int     `envconfig:"FFT_SIZE" default:"256"`
	AnalyserSmoothing float64 `envconfig:"ANALYSER_SMOOTHING" default:"0.8"`
	MinDB             float64 `envconfig:"MIN_DB" default:"-100"`
	MaxDB             float64 `envconfig:"MAX_DB" default:"-30"`
	BandLowHz         float64 `envconfig:"BAND_LOW_HZ" default:"150"`   // Voice fundamental
	BandHighHz        float64 `envconfig:"BAND_HIGH_HZ" default:"1100"` // First formant
	SilenceFloor      float64 `envconfig:"SILENCE_FLOOR" default:"0.0005"`
	MouthGain         float64 `envconfig:"MOUTH_GAIN" default:"2.2"`
	MouthExponent     float64 `envconfig:"MOUTH_EXPONENT" default:"0.6"`
	MouthAttack       float64 `envconfig:"MOUTH_ATTACK" default:"0.45"`
	MouthRelease      float64 `envconfig:"MOUTH_RELEASE" default:"0.15"`

	// Sprite configuration
	SpriteDir   string `envconfig:"SPRITE_DIR" default:"static/images/visemes"`
	AvatarImage string `envconfig:"AVATAR_IMAGE" default:"static/images/gen_2.png"`
	SpriteWatch bool   `envconfig:"SPRITE_WATCH" default:"true"` // Regenerate when the portrait changes

	// Audio output configuration
	OutputDevice      string `envconfig:"OUTPUT_DEVICE" default:"clock"` // clock or speaker
	SpeakerSampleRate int    `envconfig:"SPEAKER_SAMPLE_RATE" default:"48000"`

	// Display connection configuration
	DisplayInputRate    float64 `envconfig:"DISPLAY_INPUT_RATE" default:"10"`      // Inbound events per second
	DisplayInputBurst   int     `envconfig:"DISPLAY_INPUT_BURST" default:"20"`     // Burst allowance
	DisplaySendBuffer   int     `envconfig:"DISPLAY_SEND_BUFFER" default:"256"`    // Outbound backlog before a display counts as lagging
	DisplayMaxMessageKB int64   `envconfig:"DISPLAY_MAX_MESSAGE_KB" default:"64"` // Largest inbound frame

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts for upstream sends
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.TickRate <= 0 || c.TickRate > 240 {
		return fmt.Errorf("TICK_RATE must be in (0, 240], got %d", c.TickRate)
	}
	if err := c.AnalyserConfig().Validate(); err != nil {
		return fmt.Errorf("invalid analyser config: %w", err)
	}
	if err := c.MouthConfig().Validate(); err != nil {
		return fmt.Errorf("invalid mouth config: %w", err)
	}
	switch c.OutputDevice {
	case "clock", "speaker":
	default:
		return fmt.Errorf("OUTPUT_DEVICE must be clock or speaker, got %q", c.OutputDevice)
	}
	return nil
}

// AnalyserConfig returns the spectrum analyser settings
func (c *Config) AnalyserConfig() spectrum.Config {
	return spectrum.Config{
		FFTSize:      c.FFTSize,
		Smoothing:    c.AnalyserSmoothing,
		MinDB:        c.MinDB,
		MaxDB:        c.MaxDB,
		LowHz:        c.BandLowHz,
		HighHz:       c.BandHighHz,
		SilenceFloor: c.SilenceFloor,
	}
}

// MouthConfig returns the smoother settings
func (c *Config) MouthConfig() mouth.Config {
	return mouth.Config{
		Exponent: c.MouthExponent,
		Gain:     c.MouthGain,
		Attack:   c.MouthAttack,
		Release:  c.MouthRelease,
	}
}

// SpriteOptions returns the sprite generation settings
func (c *Config) SpriteOptions() sprites.Options {
	return sprites.DefaultOptions()
}

// BackendDialTimeoutDuration returns the dial timeout as a duration
func (c *Config) BackendDialTimeoutDuration() time.Duration {
	return time.Duration(c.BackendDialTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
