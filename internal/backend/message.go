package backend

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Inbound message types
const (
	TypeResponse        = "response"
	TypeRecommendations = "recommendations"
)

// Outbound message types
const (
	TypeText  = "text"
	TypeAudio = "audio"
)

// DefaultInputMime is what the backend assumes for recorded voice input
const DefaultInputMime = "audio/webm"

// Message is one frame from the backend conversation service
type Message struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Action string  `json:"action,omitempty"`
	Audio  *string `json:"audio,omitempty"` // base64, null when synthesis failed

	// Passed through to the display untouched
	CollectedInfo json.RawMessage `json:"collected_info,omitempty"`
	Courses       json.RawMessage `json:"courses,omitempty"`
}

// DecodeAudio returns the compressed audio bytes. A null or empty field
// yields an empty slice and no error.
func (m *Message) DecodeAudio() ([]byte, error) {
	if m.Audio == nil || *m.Audio == "" {
		return []byte{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(*m.Audio)
	if err != nil {
		return []byte{}, fmt.Errorf("failed to decode response audio: %w", err)
	}
	return data, nil
}

// HasCollectedInfo reports whether the message carries a non-null
// collected_info object
func (m *Message) HasCollectedInfo() bool {
	return len(m.CollectedInfo) > 0 && string(m.CollectedInfo) != "null"
}

// ParseMessage decodes one backend frame
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to parse backend message: %w", err)
	}
	return msg, nil
}

// Input is user input forwarded to the backend
type Input struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"` // base64
	Mime  string `json:"mime,omitempty"`
}

// TextInput builds a typed-text input
func TextInput(text string) Input {
	return Input{Type: TypeText, Text: text}
}

// AudioInput builds a recorded-voice input
func AudioInput(data []byte, mime string) Input {
	if mime == "" {
		mime = DefaultInputMime
	}
	return Input{
		Type:  TypeAudio,
		Audio: base64.StdEncoding.EncodeToString(data),
		Mime:  mime,
	}
}
