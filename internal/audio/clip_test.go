package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

// testWAV builds a mono 16-bit PCM WAV file
func testWAV(samples []float32, sampleRate int) []byte {
	pcm := FloatToPCM16(samples)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func sine(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want Format
	}{
		{"wav", testWAV([]float32{0}, 8000), FormatWAV},
		{"mp3 id3", []byte("ID3\x04\x00\x00"), FormatMP3},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{"text", []byte("hello world"), FormatUnknown},
		{"short", []byte{0xFF}, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffFormat(tt.raw); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDecode_WAV(t *testing.T) {
	const rate = 16000
	raw := testWAV(sine(440, rate, rate/2), rate)

	clip, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if clip.Format != FormatWAV {
		t.Errorf("Expected wav format, got %s", clip.Format)
	}
	if clip.SampleRate != rate {
		t.Errorf("Expected sample rate %d, got %d", rate, clip.SampleRate)
	}
	if clip.Len() != rate/2 {
		t.Errorf("Expected %d samples, got %d", rate/2, clip.Len())
	}
	if d := clip.Duration(); d != 500*time.Millisecond {
		t.Errorf("Expected 500ms duration, got %v", d)
	}
	if math.Abs(RMS(clip.Samples)-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("Unexpected RMS %v", RMS(clip.Samples))
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}
	if _, err := Decode([]byte("definitely not audio")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
	// Valid magic, truncated header
	if _, err := Decode([]byte("RIFF\x00\x00\x00\x00WAVE")); err == nil {
		t.Error("Expected error for truncated WAV")
	}
}

func TestDecode_RejectsUnsupportedBitDepth(t *testing.T) {
	for _, bits := range []uint16{4, 64, 65} {
		raw := testWAV(sine(440, 8000, 800), 8000)
		binary.LittleEndian.PutUint16(raw[34:], bits)

		if _, err := Decode(raw); err == nil {
			t.Errorf("Expected error for %d-bit WAV", bits)
		}
	}
}

func TestClip_NilIsEmpty(t *testing.T) {
	var empty *Clip
	if empty.Duration() != 0 || empty.Len() != 0 {
		t.Error("Expected zero values for nil clip")
	}
}
