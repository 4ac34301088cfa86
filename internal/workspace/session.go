// Package workspace tracks the open editing sessions and their generations.
package workspace

import (
	"strings"
	"unicode/utf8"

	"github.com/loqalabs/voxgen/internal/speech"
)

// DefaultTitle is the title of a session whose text is empty.
const DefaultTitle = "New Project"

const titleLimit = 15

// Session is one editing context. Multi mode needs exactly two speakers with
// voices; that is checked when a generation starts, not on edit.
type Session struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Text        string           `json:"text"`
	Mode        speech.Mode      `json:"mode"`
	Voice       string           `json:"voice"`
	Speakers    []speech.Speaker `json:"speakers"`
	Instruction string           `json:"instruction"`
	Generating  bool             `json:"generating"`
	Error       string           `json:"error,omitempty"`
}

// Options returns the voice configuration of the session.
func (s Session) Options() speech.Options {
	return speech.Options{
		Mode:        s.Mode,
		Voice:       s.Voice,
		Speakers:    speech.CloneSpeakers(s.Speakers),
		Instruction: s.Instruction,
	}
}

func (s *Session) clone() Session {
	c := *s
	c.Speakers = speech.CloneSpeakers(s.Speakers)
	return c
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Title       *string          `json:"title,omitempty"`
	Text        *string          `json:"text,omitempty"`
	Mode        *speech.Mode     `json:"mode,omitempty"`
	Voice       *string          `json:"voice,omitempty"`
	Speakers    []speech.Speaker `json:"speakers,omitempty"`
	Instruction *string          `json:"instruction,omitempty"`
}

func newSession(id string) *Session {
	return &Session{
		ID:          id,
		Title:       DefaultTitle,
		Mode:        speech.ModeSingle,
		Voice:       speech.Voices()[0].Value,
		Speakers:    speech.DefaultSpeakers(),
		Instruction: speech.DefaultInstruction,
	}
}

// deriveTitle follows the text while the title is still the default or a
// previously derived quote.
func deriveTitle(current, text string) string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return DefaultTitle
	}
	if current != DefaultTitle && !strings.HasPrefix(current, `"`) {
		return current
	}
	if utf8.RuneCountInString(clean) > titleLimit {
		return `"` + string([]rune(clean)[:titleLimit]) + `..."`
	}
	return `"` + clean + `"`
}
