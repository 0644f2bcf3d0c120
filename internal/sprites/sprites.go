// Package sprites loads, generates and hot-swaps the six mouth sprites.
package sprites

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// FrameCount is the number of sprites, closed to fully open
const FrameCount = 6

// ErrIncompleteSet is returned when a sprite directory is missing frames
var ErrIncompleteSet = errors.New("incomplete sprite set")

// FrameName returns the file name of sprite i
func FrameName(i int) string {
	return fmt.Sprintf("v%d.jpg", i)
}

// Set is a complete, immutable set of sprites
type Set struct {
	Dir      string
	Frames   [FrameCount]image.Image
	LoadedAt time.Time
}

// Size returns the edge length of the frames
func (s *Set) Size() int {
	if s == nil || s.Frames[0] == nil {
		return 0
	}
	return s.Frames[0].Bounds().Dx()
}

// Load reads v0.jpg through v5.jpg from dir. Every frame must decode.
func Load(dir string) (*Set, error) {
	set := &Set{Dir: dir, LoadedAt: time.Now()}
	for i := 0; i < FrameCount; i++ {
		img, err := imaging.Open(filepath.Join(dir, FrameName(i)))
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", ErrIncompleteSet, i, err)
		}
		set.Frames[i] = img
	}
	return set, nil
}

// Ensure makes sure dir holds sprites at least as new as the portrait at src,
// regenerating them when the portrait changed, and loads them. The returned
// bool reports whether generation ran.
func Ensure(src, dir string, opts Options, logger zerolog.Logger) (*Set, bool, error) {
	fresh, err := upToDate(src, dir)
	if err != nil {
		return nil, false, err
	}
	if fresh {
		logger.Debug().Str("dir", dir).Msg("Sprites up to date")
		set, err := Load(dir)
		return set, false, err
	}

	logger.Info().Str("source", src).Msg("Portrait is newer than sprites, regenerating")
	if err := Generate(src, dir, opts, logger); err != nil {
		return nil, false, err
	}
	set, err := Load(dir)
	return set, true, err
}

// upToDate reports whether every sprite exists and none is older than src.
// A missing portrait with a complete set counts as up to date.
func upToDate(src, dir string) (bool, error) {
	var oldest time.Time
	for i := 0; i < FrameCount; i++ {
		info, err := os.Stat(filepath.Join(dir, FrameName(i)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("failed to stat sprite: %w", err)
		}
		if oldest.IsZero() || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("failed to stat portrait: %w", err)
	}
	return !srcInfo.ModTime().After(oldest), nil
}

// Store holds the current sprite set. Readers get a snapshot that never
// changes under them; a swap only affects later Current calls.
type Store struct {
	current atomic.Pointer[Set]
}

// NewStore creates a store, optionally seeded with a set
func NewStore(set *Set) *Store {
	s := &Store{}
	if set != nil {
		s.current.Store(set)
	}
	return s
}

// Current returns the active set, or nil when none is loaded
func (s *Store) Current() *Set {
	return s.current.Load()
}

// Swap replaces the active set and returns the previous one
func (s *Store) Swap(set *Set) *Set {
	return s.current.Swap(set)
}
