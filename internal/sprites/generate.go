package sprites

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// Options places the mouth on the portrait. The defaults fit the stock
// avatar portrait (1092x918).
type Options struct {
	// Crop is the square face region of the source. Empty means a centered
	// square over the shorter side.
	Crop image.Rectangle
	// Canvas is the output edge length in pixels
	Canvas int
	// MouthX, MouthY is the mouth centre on the canvas
	MouthX, MouthY int
	// MouthHalfWidth is the half-width of the opening
	MouthHalfWidth int
	// MaxOpen is the half-height of the opening on the last frame
	MaxOpen int
	Quality int
}

// DefaultOptions returns the placement for the stock portrait
func DefaultOptions() Options {
	return Options{
		Crop:           image.Rect(332, 117, 332+389, 117+389),
		Canvas:         220,
		MouthX:         113,
		MouthY:         148,
		MouthHalfWidth: 38,
		MaxOpen:        21,
		Quality:        94,
	}
}

var (
	interiorColor = color.NRGBA{R: 15, G: 12, B: 20, A: 255}
	teethColor    = color.NRGBA{R: 208, G: 213, B: 218, A: 255}
)

// teeth are drawn only once the mouth is open at least this far
const minTeethOpen = 5

// Generate renders FrameCount sprites from the portrait at src into dir
func Generate(src, dir string, opts Options, logger zerolog.Logger) error {
	start := time.Now()

	portrait, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open portrait %s: %w", src, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sprite dir: %w", err)
	}

	face := Face(portrait, opts)
	for i := 0; i < FrameCount; i++ {
		open := int(math.Round(float64(i) / float64(FrameCount-1) * float64(opts.MaxOpen)))
		frame := Frame(face, opts, open)

		path := filepath.Join(dir, FrameName(i))
		if err := imaging.Save(frame, path, imaging.JPEGQuality(opts.Quality)); err != nil {
			return fmt.Errorf("failed to save sprite %s: %w", path, err)
		}
		logger.Debug().Int("frame", i).Int("open_px", open).Msg("Sprite written")
	}

	logger.Info().
		Str("source", src).
		Str("dir", dir).
		Dur("took", time.Since(start)).
		Msg("Sprites generated")
	return nil
}

// Face crops the portrait to the face square and scales it to the canvas
func Face(portrait image.Image, opts Options) *image.NRGBA {
	crop := opts.Crop
	b := portrait.Bounds()
	if crop.Empty() || !crop.In(b) {
		side := min(b.Dx(), b.Dy())
		x := b.Min.X + (b.Dx()-side)/2
		y := b.Min.Y + (b.Dy()-side)/2
		crop = image.Rect(x, y, x+side, y+side)
	}
	return imaging.Resize(imaging.Crop(portrait, crop), opts.Canvas, opts.Canvas, imaging.Lanczos)
}

// Frame draws a mouth opened to open pixels (half-height) onto a copy of face
func Frame(face *image.NRGBA, opts Options, open int) *image.NRGBA {
	out := imaging.Clone(face)
	if open <= 0 {
		return out
	}

	hw := opts.MouthHalfWidth
	softFill(out, opts.MouthX, opts.MouthY, max(1, hw-4), max(1, open), interiorColor, 3)

	if open >= minTeethOpen {
		teethH := max(1, open/3)
		teethW := max(1, hw-10)
		teethY := opts.MouthY - open + teethH + 1
		softFill(out, opts.MouthX, teethY, teethW, teethH, teethColor, 1)
	}
	return out
}

// softFill blends c into img through a Gaussian-feathered ellipse mask
func softFill(img *image.NRGBA, cx, cy, rx, ry int, c color.NRGBA, sigma float64) {
	b := img.Bounds()
	mask := image.NewGray(b)
	fx, fy := float64(rx), float64(ry)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		dy := float64(y-cy) / fy
		for x := b.Min.X; x < b.Max.X; x++ {
			dx := float64(x-cx) / fx
			if dx*dx+dy*dy <= 1 {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	feathered := imaging.Blur(mask, sigma)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			m := float64(feathered.NRGBAAt(x, y).R) / 255
			if m == 0 {
				continue
			}
			p := img.NRGBAAt(x, y)
			img.SetNRGBA(x, y, color.NRGBA{
				R: blend(c.R, p.R, m),
				G: blend(c.G, p.G, m),
				B: blend(c.B, p.B, m),
				A: p.A,
			})
		}
	}
}

func blend(top, bottom uint8, m float64) uint8 {
	v := float64(top)*m + float64(bottom)*(1-m)
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
