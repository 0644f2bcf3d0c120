// Package playback plays queued responses one at a time, driving mouth
// animation and word reveal for the duration of each clip.
package playback

import (
	"time"

	"github.com/google/uuid"

	"github.com/lexiqai/avatar-gateway/internal/words"
)

// Item is one spoken response. Items are immutable once enqueued.
type Item struct {
	ID    string
	Text  string
	Words []string
	// Audio is the compressed clip. Empty means show the text without playback.
	Audio []byte
	// Target is an opaque handle naming where the display renders this item
	Target     string
	EnqueuedAt time.Time
}

// NewItem builds an item for text and audio. An empty target defaults to the
// item ID.
func NewItem(text string, audio []byte, target string) *Item {
	id := uuid.New().String()
	if target == "" {
		target = id
	}
	return &Item{
		ID:         id,
		Text:       text,
		Words:      words.Split(text),
		Audio:      audio,
		Target:     target,
		EnqueuedAt: time.Now(),
	}
}

// Queue is a FIFO of items. It is owned by the player loop and not safe for
// concurrent use.
type Queue struct {
	items []*Item
}

// Push appends an item at the tail
func (q *Queue) Push(item *Item) {
	q.items = append(q.items, item)
}

// Pop removes and returns the head, or nil when empty
func (q *Queue) Pop() *Item {
	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item
}

// Len returns the number of queued items
func (q *Queue) Len() int {
	return len(q.items)
}
