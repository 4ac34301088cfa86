package speech

import "strings"

// Mode selects single-voice or two-speaker dialogue generation.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// ParseMode normalises a mode string. Empty input defaults to single.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSingle:
		return ModeSingle, true
	case ModeMulti:
		return ModeMulti, true
	}
	return "", false
}

// Speaker maps a script-line speaker label to a voice.
type Speaker struct {
	Name  string `json:"name" yaml:"name"`
	Voice string `json:"voice" yaml:"voice"`
}

// Options is the voice configuration of a session or preset.
type Options struct {
	Mode        Mode
	Voice       string
	Speakers    []Speaker
	Instruction string
}

// Request is the payload handed to a synthesizer.
type Request struct {
	Prompt   string
	Mode     Mode
	Voice    string
	Speakers []Speaker
}

// CloneSpeakers returns a copy so callers never share backing arrays.
func CloneSpeakers(in []Speaker) []Speaker {
	if in == nil {
		return nil
	}
	return append([]Speaker(nil), in...)
}

// VoiceLabel is the display label for a generation: the voice itself, or
// "Multi (A, B)" listing speaker names.
func VoiceLabel(mode Mode, voice string, speakers []Speaker) string {
	if mode != ModeMulti {
		return voice
	}
	names := make([]string, 0, len(speakers))
	for _, s := range speakers {
		names = append(names, s.Name)
	}
	return "Multi (" + strings.Join(names, ", ") + ")"
}
