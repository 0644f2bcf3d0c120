package playback

// Phase is the player state
type Phase int

const (
	Idle Phase = iota
	AwaitingGate
	Decoding
	Playing
	Flushing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingGate:
		return "awaiting-gate"
	case Decoding:
		return "decoding"
	case Playing:
		return "playing"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Outcome says how an item left the player
type Outcome string

const (
	OutcomePlayed       Outcome = "played"
	OutcomeNoAudio      Outcome = "no_audio"
	OutcomeDecodeFailed Outcome = "decode_failed"
	OutcomeDeviceFailed Outcome = "device_failed"
)
