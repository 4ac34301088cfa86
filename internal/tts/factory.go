package tts

import (
	"fmt"
	"time"

	"github.com/loqalabs/voxgen/internal/config"
)

// New builds the synthesizer selected by cfg.Mode.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "gemini":
		var opts GeminiOptions
		if err := config.DecodeSettings(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("decode tts.options: %w", err)
		}
		return NewGeminiSynth(cfg.Endpoint, cfg.Model, cfg.APIKey, opts, time.Duration(cfg.TimeoutMS)*time.Millisecond), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate)
	case "mock", "":
		return NewMockSynth(cfg.SampleRate, 50*time.Millisecond), nil
	}
	return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
}
