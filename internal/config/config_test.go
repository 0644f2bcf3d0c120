package config

import (
	"os"
	"testing"
)

const testBackendURL = "ws://localhost:8000/api/v1/ws"

func TestLoad(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BackendURL != testBackendURL {
		t.Errorf("Expected BackendURL '%s', got '%s'", testBackendURL, cfg.BackendURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("BACKEND_URL")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when BACKEND_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.TickRate != 60 {
		t.Errorf("Expected default TickRate 60, got %d", cfg.TickRate)
	}

	if cfg.FFTSize != 256 {
		t.Errorf("Expected default FFTSize 256, got %d", cfg.FFTSize)
	}

	if cfg.BandLowHz != 150 || cfg.BandHighHz != 1100 {
		t.Errorf("Expected default band 150-1100 Hz, got %v-%v", cfg.BandLowHz, cfg.BandHighHz)
	}

	if cfg.MouthAttack != 0.45 || cfg.MouthRelease != 0.15 {
		t.Errorf("Expected default attack/release 0.45/0.15, got %v/%v", cfg.MouthAttack, cfg.MouthRelease)
	}

	if cfg.MouthGain != 2.2 || cfg.MouthExponent != 0.6 {
		t.Errorf("Expected default gain/exponent 2.2/0.6, got %v/%v", cfg.MouthGain, cfg.MouthExponent)
	}

	if cfg.SpriteDir != "static/images/visemes" {
		t.Errorf("Expected default SpriteDir 'static/images/visemes', got '%s'", cfg.SpriteDir)
	}

	if cfg.OutputDevice != "clock" {
		t.Errorf("Expected default OutputDevice 'clock', got '%s'", cfg.OutputDevice)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	os.Setenv("TICK_RATE", "30")
	defer os.Unsetenv("BACKEND_URL")
	defer os.Unsetenv("TICK_RATE")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.TickRate != 30 {
		t.Errorf("Expected TickRate 30, got %d", cfg.TickRate)
	}
}

func TestLoad_InvalidMouthRates(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	os.Setenv("MOUTH_ATTACK", "0.1")
	os.Setenv("MOUTH_RELEASE", "0.3")
	defer os.Unsetenv("BACKEND_URL")
	defer os.Unsetenv("MOUTH_ATTACK")
	defer os.Unsetenv("MOUTH_RELEASE")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when release is faster than attack")
	}
}

func TestLoad_InvalidBand(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	os.Setenv("BAND_LOW_HZ", "2000")
	defer os.Unsetenv("BACKEND_URL")
	defer os.Unsetenv("BAND_LOW_HZ")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when band low bound exceeds high bound")
	}
}

func TestLoad_InvalidOutputDevice(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	os.Setenv("OUTPUT_DEVICE", "hdmi")
	defer os.Unsetenv("BACKEND_URL")
	defer os.Unsetenv("OUTPUT_DEVICE")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error for unknown output device")
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check resilience defaults
	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}

	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}

	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}

func TestConfig_DerivedSettings(t *testing.T) {
	os.Setenv("BACKEND_URL", testBackendURL)
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	ac := cfg.AnalyserConfig()
	if ac.FFTSize != 256 || ac.Smoothing != 0.8 || ac.MinDB != -100 || ac.MaxDB != -30 {
		t.Errorf("Unexpected analyser config: %+v", ac)
	}

	mc := cfg.MouthConfig()
	if mc.Attack <= mc.Release {
		t.Errorf("Expected attack faster than release, got %+v", mc)
	}

	if cfg.BackendDialTimeoutDuration().Seconds() != 10 {
		t.Errorf("Expected 10s dial timeout, got %v", cfg.BackendDialTimeoutDuration())
	}
}
