// Package speech shapes session configuration into synthesizer requests.
package speech

import (
	"fmt"
	"strings"

	"github.com/loqalabs/voxgen/internal/errkind"
)

// Build turns script text and voice options into a Request. It performs no I/O.
//
// A non-empty instruction becomes a preamble separated from the script by a blank line.
func Build(text string, opts Options) (Request, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Request{}, errkind.New(errkind.Validation, "Please enter some text.")
	}

	prompt := text
	if instruction := strings.TrimSpace(opts.Instruction); instruction != "" {
		prompt = instruction + "\n\n" + text
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeSingle
	}
	switch mode {
	case ModeSingle:
		if strings.TrimSpace(opts.Voice) == "" {
			return Request{}, errkind.New(errkind.Configuration, "Voice name required for single speaker mode.")
		}
		return Request{Prompt: prompt, Mode: ModeSingle, Voice: opts.Voice}, nil
	case ModeMulti:
		if len(opts.Speakers) != 2 {
			return Request{}, errkind.New(errkind.Configuration, "Multi-speaker mode requires exactly 2 defined speakers.")
		}
		for i, s := range opts.Speakers {
			if strings.TrimSpace(s.Voice) == "" {
				return Request{}, errkind.New(errkind.Configuration, fmt.Sprintf("Speaker %d has no voice selected.", i+1))
			}
		}
		return Request{Prompt: prompt, Mode: ModeMulti, Speakers: CloneSpeakers(opts.Speakers)}, nil
	}
	return Request{}, errkind.New(errkind.Configuration, fmt.Sprintf("Unknown generation mode %q.", mode))
}
