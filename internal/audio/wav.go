package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/loqalabs/voxgen/internal/errkind"
)

const (
	// HeaderSize is the size of the canonical PCM WAV header.
	HeaderSize = 44
	// FormatPCM is the WAVE format code for uncompressed PCM.
	FormatPCM = 1

	ContentType     = "audio/wav"
	DefaultFilename = "voxgen-audio.wav"
)

// Header describes a parsed WAV container.
type Header struct {
	SampleRate  int
	Channels    int
	BitDepth    int
	SampleCount int
}

// Clip is a playable WAV artifact together with its duration.
type Clip struct {
	WAV        []byte
	Samples    int
	SampleRate int
	Channels   int
	Duration   float64
}

// EncodeWAV wraps normalised samples into a 16-bit PCM WAV container.
// Samples are interleaved when channels > 1; len(samples) must be a multiple of channels.
func EncodeWAV(samples []float32, channels, sampleRate int) []byte {
	if channels <= 0 {
		channels = 1
	}
	frames := len(samples) / channels
	dataSize := frames * channels * 2
	buf := make([]byte, HeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)-8))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], FormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	offset := HeaderSize
	for _, s := range samples[:frames*channels] {
		binary.LittleEndian.PutUint16(buf[offset:], uint16(quantize(s)))
		offset += 2
	}
	return buf
}

// quantize clamps s to [-1, 1] and scales negatives by 32768 and the rest by 32767,
// truncating toward zero.
func quantize(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// Duration returns the playback length in seconds.
func Duration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRate)
}

// Transcode decodes a base64 mono PCM payload and re-encodes it as WAV.
func Transcode(payload string, sampleRate int) (Clip, error) {
	samples, err := DecodeBase64PCM(payload)
	if err != nil {
		return Clip{}, err
	}
	return Clip{
		WAV:        EncodeWAV(samples, Channels, sampleRate),
		Samples:    len(samples),
		SampleRate: sampleRate,
		Channels:   Channels,
		Duration:   Duration(len(samples), sampleRate),
	}, nil
}

// ParseHeader reads the format and data size back out of a WAV container.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errkind.Wrap(fmt.Errorf("wav too short (%d bytes)", len(data)), errkind.Decode)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Header{}, errkind.Wrap(fmt.Errorf("not a riff/wave container"), errkind.Decode)
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return Header{}, errkind.Wrap(fmt.Errorf("not a readable wav file: %w", err), errkind.Decode)
	}
	if dec.SampleRate == 0 || dec.NumChans == 0 || dec.BitDepth == 0 {
		return Header{}, errkind.Wrap(fmt.Errorf("wav metadata is incomplete"), errkind.Decode)
	}
	if err := dec.FwdToPCM(); err != nil {
		return Header{}, errkind.Wrap(fmt.Errorf("locate wav data chunk: %w", err), errkind.Decode)
	}
	if riffSize := binary.LittleEndian.Uint32(data[4:8]); int(riffSize) != len(data)-8 {
		return Header{}, errkind.Wrap(fmt.Errorf("riff size %d does not match length %d", riffSize, len(data)), errkind.Decode)
	}
	h := Header{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if h.Channels > 0 && h.BitDepth > 0 {
		h.SampleCount = dec.PCMSize / (h.Channels * h.BitDepth / 8)
	}
	return h, nil
}

// DecodeWAV reads a 16-bit WAV container back into normalised samples.
func DecodeWAV(data []byte) ([]float32, Header, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, Header{}, err
	}
	if h.BitDepth != BitsPerSample {
		return nil, h, errkind.Wrap(fmt.Errorf("unsupported bit depth %d", h.BitDepth), errkind.Decode)
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, h, errkind.Wrap(fmt.Errorf("read wav samples: %w", err), errkind.Decode)
	}
	return normalize(buf, h.SampleCount*h.Channels), h, nil
}

// normalize scales 16-bit integer samples into [-1.0, 1.0), keeping at most limit values.
func normalize(buf *goaudio.IntBuffer, limit int) []float32 {
	n := len(buf.Data)
	if n > limit {
		n = limit
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = float32(buf.Data[i]) / 32768.0
	}
	return samples
}
