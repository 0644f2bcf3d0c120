package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/youpy/go-wav"
)

const wavChunkSize = 2048

var (
	// ErrEmptyAudio is returned when a response carried no audio bytes
	ErrEmptyAudio = errors.New("empty audio")
	// ErrUnknownFormat is returned when the container is neither WAV nor MP3
	ErrUnknownFormat = errors.New("unknown audio format")
)

// Format identifies the compressed container of a clip
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

// Clip is a decoded, sampleable audio buffer (mono, float32 in [-1, 1])
type Clip struct {
	Samples    []float32
	SampleRate int
	Format     Format
}

// Duration returns the playback length of the clip
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return beep.SampleRate(c.SampleRate).D(len(c.Samples))
}

// Len returns the number of samples in the clip
func (c *Clip) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Samples)
}

// SniffFormat detects the container from its magic bytes.
// The primary TTS voice produces MP3, the offline fallback produces WAV.
func SniffFormat(raw []byte) Format {
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE":
		return FormatWAV
	case len(raw) >= 3 && string(raw[0:3]) == "ID3":
		return FormatMP3
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Decode turns compressed audio bytes into a mono Clip
func Decode(raw []byte) (*Clip, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyAudio
	}

	var (
		clip *Clip
		err  error
	)
	switch format := SniffFormat(raw); format {
	case FormatWAV:
		clip, err = decodeWAV(raw)
	case FormatMP3:
		clip, err = decodeMP3(raw)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, err
	}
	if len(clip.Samples) == 0 {
		return nil, fmt.Errorf("decoded %s audio has no samples: %w", clip.Format, ErrEmptyAudio)
	}
	return clip, nil
}

func decodeWAV(raw []byte) (*Clip, error) {
	reader := wav.NewReader(bytes.NewReader(raw))

	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav audio: %w", err)
	}
	if format.NumChannels == 0 {
		return nil, fmt.Errorf("failed to decode wav audio: invalid format chunk")
	}
	if format.BitsPerSample < 8 || format.BitsPerSample > 32 {
		return nil, fmt.Errorf("failed to decode wav audio: unsupported bit depth %d", format.BitsPerSample)
	}

	scale := float32(int(1) << (format.BitsPerSample - 1))
	channels := int(format.NumChannels)
	if channels > 2 {
		channels = 2
	}

	var samples []float32
	for {
		chunk, err := reader.ReadSamples(wavChunkSize)
		for _, s := range chunk {
			var sum float32
			for ch := 0; ch < channels; ch++ {
				v := s.Values[ch]
				if format.BitsPerSample == 8 {
					// 8-bit PCM is unsigned
					v -= 128
				}
				sum += float32(v) / scale
			}
			samples = append(samples, sum/float32(channels))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read wav audio: %w", err)
		}
	}

	return &Clip{
		Samples:    samples,
		SampleRate: int(format.SampleRate),
		Format:     FormatWAV,
	}, nil
}

func decodeMP3(raw []byte) (*Clip, error) {
	stream, bf, err := mp3.Decode(io.NopCloser(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3 audio: %w", err)
	}
	defer stream.Close()

	samples := make([]float32, 0, max(stream.Len(), 0))
	frame := make([][2]float64, 1024)
	for {
		n, ok := stream.Stream(frame)
		for i := 0; i < n; i++ {
			if bf.NumChannels > 1 {
				samples = append(samples, float32((frame[i][0]+frame[i][1])/2))
			} else {
				samples = append(samples, float32(frame[i][0]))
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mp3 audio: %w", err)
	}

	return &Clip{
		Samples:    samples,
		SampleRate: int(bf.SampleRate),
		Format:     FormatMP3,
	}, nil
}
