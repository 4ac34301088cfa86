package tts

import (
	"context"

	"github.com/loqalabs/voxgen/internal/speech"
)

// Response carries the audio returned by a synthesizer.
// An empty AudioBase64 means the backend answered without audio.
type Response struct {
	AudioBase64 string
	MIMEType    string
}

// Synthesizer is the contract for the remote speech collaborator.
// Implementations make at most one backend call per request and never retry.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.Request) (Response, error)
}
