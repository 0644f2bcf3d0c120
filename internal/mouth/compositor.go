package mouth

import (
	"math"
)

// FrameCount is the number of mouth sprites, closed to fully open
const FrameCount = 6

// Frame says which sprites to draw. Base is drawn opaque; Overlay, when not
// -1, is drawn on top at Alpha.
type Frame struct {
	Base    int     `json:"base"`
	Overlay int     `json:"overlay"`
	Alpha   float64 `json:"alpha"`
	Static  bool    `json:"static,omitempty"`
}

// alphaSteps quantizes the blend. The smoother only approaches its target
// asymptotically, so without it a fully open mouth would never land on a
// single unblended sprite.
const alphaSteps = 1e6

// Closed is the frame shown between clips
var Closed = Frame{Base: 0, Overlay: -1}

// Compositor maps openness onto adjacent sprite pairs
type Compositor struct {
	hasSprites bool
}

// NewCompositor creates a compositor. Without sprites every frame is the
// static face.
func NewCompositor(hasSprites bool) *Compositor {
	return &Compositor{hasSprites: hasSprites}
}

// Compose returns the frame for openness current in [0, 1]
func (c *Compositor) Compose(current float64) Frame {
	if !c.hasSprites {
		return Frame{Base: 0, Overlay: -1, Static: true}
	}

	idx := clamp(current) * (FrameCount - 1)
	idx = math.Round(idx*alphaSteps) / alphaSteps
	base := math.Floor(idx)
	frac := idx - base
	if frac == 0 {
		return Frame{Base: int(base), Overlay: -1}
	}
	return Frame{
		Base:    int(base),
		Overlay: int(math.Ceil(idx)),
		Alpha:   frac,
	}
}
