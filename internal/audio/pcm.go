// Package audio turns the raw PCM returned by the speech API into playable WAV containers.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/loqalabs/voxgen/internal/errkind"
)

// Fixed format of the speech API output.
const (
	SampleRate    = 24000
	Channels      = 1
	BitsPerSample = 16
)

// DecodeBase64 decodes the standard base64 payload returned by the speech API.
func DecodeBase64(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errkind.Wrap(fmt.Errorf("decode audio payload: %w", err), errkind.Decode)
	}
	return raw, nil
}

// DecodePCM16 interprets pcm as signed 16-bit little-endian samples and
// normalises each one into [-1.0, 1.0) by dividing by 32768.
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, errkind.Wrap(fmt.Errorf("pcm payload not aligned: %d bytes", len(pcm)), errkind.Decode)
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// DecodeBase64PCM decodes a base64 PCM payload into normalised samples.
func DecodeBase64PCM(payload string) ([]float32, error) {
	raw, err := DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return DecodePCM16(raw)
}
