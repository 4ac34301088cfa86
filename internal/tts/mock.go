package tts

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"math"
	"time"

	"github.com/loqalabs/voxgen/internal/speech"
)

type mockSynth struct {
	sampleRate int
	delay      time.Duration
}

// NewMockSynth returns a synthesizer that answers every request with a short tone.
func NewMockSynth(sampleRate int, delay time.Duration) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, delay: delay}
}

func (m *mockSynth) Synthesize(ctx context.Context, req speech.Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-time.After(m.delay):
	}
	return Response{AudioBase64: tone(m.sampleRate, 440, 250*time.Millisecond), MIMEType: "audio/L16;rate=24000"}, nil
}

// tone renders a sine wave as base64 16-bit little-endian PCM.
func tone(sampleRate int, freq float64, length time.Duration) string {
	n := int(float64(sampleRate) * length.Seconds())
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := 0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*32767)))
	}
	return base64.StdEncoding.EncodeToString(pcm)
}
