package display

import (
	"encoding/json"

	"github.com/lexiqai/avatar-gateway/internal/mouth"
)

// Inbound event types, sent by the display surface
const (
	EventSubmit  = "submit"  // primary submit control
	EventVoice   = "voice"   // record-confirm key
	EventGesture = "gesture" // plain press on the face
)

// Outbound event types
const (
	EventHello           = "hello"
	EventState           = "state"
	EventItemStart       = "item_start"
	EventWords           = "words"
	EventMouth           = "mouth"
	EventItemEnd         = "item_end"
	EventRecommendations = "recommendations"
	EventCollectedInfo   = "collected_info"
	EventError           = "error"
)

// InboundEvent is a user input event from the display surface
type InboundEvent struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Audio  string `json:"audio,omitempty"` // base64 recording
	Mime   string `json:"mime,omitempty"`
	Source string `json:"source,omitempty"` // pointer or key, for gesture events
}

// OutboundEvent is one render instruction for the display surface.
// Fields not used by a type are omitted.
type OutboundEvent struct {
	Type string `json:"type"`

	// hello
	SessionID string      `json:"session_id,omitempty"`
	Sprites   *SpriteInfo `json:"sprites,omitempty"`

	// state
	Phase  string `json:"phase,omitempty"`
	Queued *int   `json:"queued,omitempty"`

	// item_start, words, mouth, item_end
	ItemID     string       `json:"item_id,omitempty"`
	Target     string       `json:"target,omitempty"`
	HasAudio   *bool        `json:"has_audio,omitempty"`
	IntervalMs int64        `json:"interval_ms,omitempty"`
	WordCount  int          `json:"word_count,omitempty"`
	Words      []string     `json:"words,omitempty"`
	Frame      *mouth.Frame `json:"frame,omitempty"`
	Mouth      *mouth.State `json:"mouth,omitempty"`
	Outcome    string       `json:"outcome,omitempty"`

	// recommendations, collected_info
	Courses       json.RawMessage `json:"courses,omitempty"`
	CollectedInfo json.RawMessage `json:"collected_info,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SpriteInfo tells the display where to fetch mouth sprites
type SpriteInfo struct {
	Static  bool     `json:"static"`
	Frames  []string `json:"frames,omitempty"`
	Version int64    `json:"version,omitempty"`
}
