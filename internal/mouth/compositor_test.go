package mouth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositor_Compose(t *testing.T) {
	c := NewCompositor(true)

	tests := []struct {
		name    string
		current float64
		want    Frame
	}{
		{"closed", 0, Frame{Base: 0, Overlay: -1}},
		{"fully open", 1, Frame{Base: 5, Overlay: -1}},
		{"exact sprite", 0.4, Frame{Base: 2, Overlay: -1}},
		{"blend", 0.5, Frame{Base: 2, Overlay: 3, Alpha: 0.5}},
		{"low blend", 0.05, Frame{Base: 0, Overlay: 1, Alpha: 0.25}},
		{"above range", 1.7, Frame{Base: 5, Overlay: -1}},
		{"below range", -0.2, Frame{Base: 0, Overlay: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compose(tt.current)
			assert.Equal(t, tt.want.Base, got.Base)
			assert.Equal(t, tt.want.Overlay, got.Overlay)
			assert.InDelta(t, tt.want.Alpha, got.Alpha, 1e-9)
			assert.False(t, got.Static)
		})
	}
}

func TestCompositor_OverlayIsAdjacent(t *testing.T) {
	c := NewCompositor(true)
	for i := 1; i < 100; i++ {
		f := c.Compose(float64(i) / 100)
		assert.True(t, f.Base >= 0 && f.Base < FrameCount)
		if f.Overlay != -1 {
			assert.Equal(t, f.Base+1, f.Overlay)
			assert.True(t, f.Alpha > 0 && f.Alpha < 1)
		}
	}
}

func TestCompositor_NoSprites(t *testing.T) {
	c := NewCompositor(false)
	f := c.Compose(0.7)
	assert.True(t, f.Static)
	assert.Equal(t, 0, f.Base)
	assert.Equal(t, -1, f.Overlay)
}

func TestCompositor_SnapsNearSaturation(t *testing.T) {
	c := NewCompositor(true)

	f := c.Compose(1 - 1e-12)
	assert.Equal(t, 5, f.Base)
	assert.Equal(t, -1, f.Overlay)

	f = c.Compose(1e-12)
	assert.Equal(t, 0, f.Base)
	assert.Equal(t, -1, f.Overlay)
}
