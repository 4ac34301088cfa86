// Package preset manages named, reusable voice configurations.
package preset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/voxgen/internal/speech"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid preset")

// Preset is a tagged variant over Mode: single presets carry Voice, multi
// presets carry exactly two Speakers.
type Preset struct {
	ID          string
	Name        string
	Mode        speech.Mode
	Voice       string
	Speakers    []speech.Speaker
	Instruction string
}

// Validate reports whether p is a well-formed variant.
func (p Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	switch p.Mode {
	case speech.ModeSingle:
		if strings.TrimSpace(p.Voice) == "" {
			return fmt.Errorf("%w %q: voice is required in single mode", ErrInvalid, p.Name)
		}
	case speech.ModeMulti:
		if len(p.Speakers) != 2 {
			return fmt.Errorf("%w %q: multi mode requires exactly 2 speakers, got %d", ErrInvalid, p.Name, len(p.Speakers))
		}
		for i, s := range p.Speakers {
			if strings.TrimSpace(s.Voice) == "" {
				return fmt.Errorf("%w %q: speaker %d needs a voice", ErrInvalid, p.Name, i+1)
			}
		}
	default:
		return fmt.Errorf("%w %q: unknown mode %q", ErrInvalid, p.Name, p.Mode)
	}
	return nil
}

// Options converts the preset into a session voice configuration.
func (p Preset) Options() speech.Options {
	return speech.Options{
		Mode:        p.Mode,
		Voice:       p.Voice,
		Speakers:    speech.CloneSpeakers(p.Speakers),
		Instruction: p.Instruction,
	}
}

// Record is the stored JSON shape. Mode and Speakers are optional so that
// collections written before multi-speaker support still load.
type Record struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Mode              string           `json:"mode,omitempty"`
	Voice             string           `json:"voice"`
	Speakers          []speech.Speaker `json:"speakers,omitempty"`
	SystemInstruction string           `json:"systemInstruction"`
}

// Migrate turns a stored record into a Preset. A missing mode means single; a multi
// record without exactly two speakers falls back to single with its own voice, or
// the default voice when it has none.
func Migrate(r Record) Preset {
	p := Preset{
		ID:          r.ID,
		Name:        r.Name,
		Voice:       r.Voice,
		Instruction: r.SystemInstruction,
	}
	mode, ok := speech.ParseMode(r.Mode)
	if !ok {
		mode = speech.ModeSingle
	}
	if mode == speech.ModeMulti && len(r.Speakers) == 2 {
		p.Mode = speech.ModeMulti
		p.Speakers = speech.CloneSpeakers(r.Speakers)
		return p
	}
	p.Mode = speech.ModeSingle
	if strings.TrimSpace(p.Voice) == "" {
		p.Voice = speech.DefaultVoice()
	}
	return p
}

// Record converts p into its stored shape.
func (p Preset) Record() Record {
	r := Record{
		ID:                p.ID,
		Name:              p.Name,
		Mode:              string(p.Mode),
		Voice:             p.Voice,
		SystemInstruction: p.Instruction,
	}
	if p.Mode == speech.ModeMulti {
		r.Speakers = speech.CloneSpeakers(p.Speakers)
	}
	return r
}

// Defaults is the built-in collection used when nothing has been stored yet.
func Defaults() []Preset {
	single := func(id, name, voice, instruction string) Preset {
		return Preset{ID: id, Name: name, Mode: speech.ModeSingle, Voice: voice, Instruction: instruction}
	}
	return []Preset{
		single("kore-std", "Kore - Standard Narration", "Kore",
			"You are a professional narrator. Speak clearly, at a moderate pace, with a warm and engaging tone."),
		single("kore-calm", "Kore - Calm Meditation", "Kore",
			"Speak in a slow, soothing, and soft whispery tone suitable for meditation or relaxation content."),
		single("Achernar-Soft", "Achernar - Soft", "Achernar",
			"Speak in a clear, calm, and encouraging tone, with a focus on clear articulation and patient explanation of concepts."),
		single("puck-story", "Puck - Expressive Storyteller", "Puck",
			"You are an expressive storyteller. Use dynamic intonation, pauses for effect, and convey emotion and suspense."),
		single("puck-energetic", "Puck - Energetic Promo", "Puck",
			"Speak with high energy, enthusiasm, and a faster pace. Perfect for commercials or exciting announcements."),
		single("charon-news", "Charon - News Anchor", "Charon",
			"Speak with a formal, authoritative, and objective tone like a professional news anchor."),
		single("charon-doc", "Charon - Deep Documentary", "Charon",
			"Speak slowly and gravely with a deep, resonant tone suitable for a serious documentary or historical narration."),
		single("fenrir-audiobook", "Fenrir - Fantasy Audiobook", "Fenrir",
			"Speak with a rough, gritty, and dramatic tone suitable for fantasy or sci-fi character dialogue."),
		single("fenrir-instruct", "Fenrir - Firm Instruction", "Fenrir",
			"Speak directly, firmly, and authoritatively. Clear and concise."),
	}
}
