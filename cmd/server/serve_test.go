package main

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/output"
)

func TestDeviceFactory_Clock(t *testing.T) {
	device, err := deviceFactory(&config.Config{OutputDevice: "clock"})(clock.NewMock(), zerolog.Nop())
	require.NoError(t, err)

	_, ok := device.(*output.ClockDevice)
	assert.True(t, ok)
	assert.Equal(t, output.Suspended, device.State())
}

func TestDeviceFactory_SpeakerFallsBack(t *testing.T) {
	device, err := deviceFactory(&config.Config{OutputDevice: "speaker", SpeakerSampleRate: 48000})(clock.NewMock(), zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, device)
	defer device.Close()

	// Without the portaudio build tag the clock device stands in
	if _, ok := device.(*output.ClockDevice); !ok {
		t.Logf("speaker device in use: %T", device)
	}
}

func TestLoadSprites_MissingFallsBackToStatic(t *testing.T) {
	dir := t.TempDir()
	store := loadSprites(&config.Config{
		AvatarImage: dir + "/missing.png",
		SpriteDir:   dir + "/visemes",
	}, zerolog.Nop())

	require.NotNil(t, store)
	assert.Nil(t, store.Current())
}
