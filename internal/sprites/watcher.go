package sprites

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultSettle = 500 * time.Millisecond

// Watcher regenerates sprites when the portrait file changes and swaps the
// new set into a Store
type Watcher struct {
	src    string
	dir    string
	opts   Options
	store  *Store
	settle time.Duration
	logger zerolog.Logger

	watcher  *fsnotify.Watcher
	onReload func(*Set)
}

// NewWatcher watches the directory containing src. Editors usually replace
// files rather than write them in place, so the file itself is not watched.
func NewWatcher(src, dir string, opts Options, store *Store, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(src)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(src), err)
	}

	return &Watcher{
		src:     src,
		dir:     dir,
		opts:    opts,
		store:   store,
		settle:  defaultSettle,
		logger:  logger.With().Str("component", "sprite-watcher").Logger(),
		watcher: fw,
	}, nil
}

// SetSettle sets how long the portrait must stay quiet before regenerating
func (w *Watcher) SetSettle(d time.Duration) {
	if d > 0 {
		w.settle = d
	}
}

// OnReload registers a callback run after each successful swap
func (w *Watcher) OnReload(fn func(*Set)) {
	w.onReload = fn
}

// Run processes file events until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	target := filepath.Clean(w.src)
	var (
		pending <-chan time.Time
		timer   *time.Timer
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.settle)
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Sprite watcher error")
		}
	}
}

func (w *Watcher) reload() {
	set, regenerated, err := Ensure(w.src, w.dir, w.opts, w.logger)
	if err != nil {
		// keep serving the previous set
		w.logger.Error().Err(err).Msg("Failed to regenerate sprites")
		return
	}
	if !regenerated {
		return
	}
	w.store.Swap(set)
	w.logger.Info().Str("dir", w.dir).Msg("Sprite set swapped")
	if w.onReload != nil {
		w.onReload(set)
	}
}
