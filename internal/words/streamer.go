// Package words reveals a response's text one word at a time, paced to the
// length of its audio clip.
package words

import (
	"strings"
	"time"
)

// Split breaks text into whitespace-separated words
func Split(text string) []string {
	return strings.Fields(text)
}

// Cursor reports reveal progress. Revealed never decreases and never
// exceeds WordCount.
type Cursor struct {
	Revealed  int
	WordCount int
	Interval  time.Duration
}

// Done reports whether every word has been revealed
func (c Cursor) Done() bool {
	return c.Revealed >= c.WordCount
}

// Streamer paces words evenly across a clip. One streamer serves one item at
// a time; Start replaces any previous item.
type Streamer struct {
	words    []string
	revealed int
	interval time.Duration
}

// NewStreamer creates an idle streamer
func NewStreamer() *Streamer {
	return &Streamer{}
}

// Start loads words for a clip of the given duration and returns the reveal
// interval. ok is false when there is nothing to pace, in which case no
// interval should be scheduled.
func (s *Streamer) Start(words []string, clipDuration time.Duration) (interval time.Duration, ok bool) {
	s.words = words
	s.revealed = 0
	s.interval = 0

	if len(words) == 0 || clipDuration <= 0 {
		return 0, false
	}
	s.interval = clipDuration / time.Duration(len(words))
	if s.interval <= 0 {
		// more words than nanoseconds; reveal on every tick
		s.interval = time.Nanosecond
	}
	return s.interval, true
}

// Load sets words without pacing, for items that will be flushed at once
func (s *Streamer) Load(words []string) {
	s.words = words
	s.revealed = 0
	s.interval = 0
}

// Reveal returns the next word. ok is false once every word is out, however
// many times the interval fires.
func (s *Streamer) Reveal() (word string, ok bool) {
	if s.revealed >= len(s.words) {
		return "", false
	}
	word = s.words[s.revealed]
	s.revealed++
	return word, true
}

// Flush returns every unrevealed word and marks the item fully revealed
func (s *Streamer) Flush() []string {
	if s.revealed >= len(s.words) {
		return nil
	}
	rest := s.words[s.revealed:]
	s.revealed = len(s.words)
	return rest
}

// Cursor returns the current progress
func (s *Streamer) Cursor() Cursor {
	return Cursor{
		Revealed:  s.revealed,
		WordCount: len(s.words),
		Interval:  s.interval,
	}
}
