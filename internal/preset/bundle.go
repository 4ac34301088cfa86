package preset

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/loqalabs/voxgen/internal/speech"
)

// Bundle is a YAML file of presets used to seed the library.
type Bundle struct {
	Presets []BundleEntry `yaml:"presets"`
}

type BundleEntry struct {
	ID          string           `yaml:"id,omitempty"`
	Name        string           `yaml:"name"`
	Mode        string           `yaml:"mode,omitempty"`
	Voice       string           `yaml:"voice,omitempty"`
	Speakers    []speech.Speaker `yaml:"speakers,omitempty"`
	Instruction string           `yaml:"instruction"`
}

// LoadBundle reads a bundle from disk.
func LoadBundle(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, err
	}
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("parse preset bundle: %w", err)
	}
	return b, nil
}

// ValidateBundle checks every entry, rejects duplicate ids and voices missing from the catalog.
func ValidateBundle(b Bundle) error {
	if len(b.Presets) == 0 {
		return fmt.Errorf("presets must include at least one entry")
	}
	seen := make(map[string]struct{})
	for i, e := range b.Presets {
		mode, ok := speech.ParseMode(e.Mode)
		if !ok {
			return fmt.Errorf("presets[%d]: mode %q not supported", i, e.Mode)
		}
		p := e.preset(mode)
		if err := p.Validate(); err != nil {
			return fmt.Errorf("presets[%d]: %w", i, err)
		}
		voices := []string{p.Voice}
		if mode == speech.ModeMulti {
			voices = voices[:0]
			for _, s := range p.Speakers {
				voices = append(voices, s.Voice)
			}
		}
		for _, v := range voices {
			if _, ok := speech.LookupVoice(v); !ok {
				return fmt.Errorf("presets[%d]: unknown voice %q", i, v)
			}
		}
		if e.ID != "" {
			if _, dup := seen[e.ID]; dup {
				return fmt.Errorf("presets[%d]: duplicate id %q", i, e.ID)
			}
			seen[e.ID] = struct{}{}
		}
	}
	return nil
}

// Resolve converts the entries. Entries without an id get one derived from their name,
// so seeding the same bundle twice adds nothing.
func (b Bundle) Resolve() []Preset {
	out := make([]Preset, 0, len(b.Presets))
	for _, e := range b.Presets {
		mode, ok := speech.ParseMode(e.Mode)
		if !ok {
			continue
		}
		p := e.preset(mode)
		if p.ID == "" {
			p.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("voxgen.preset."+p.Name)).String()
		}
		out = append(out, p)
	}
	return out
}

func (e BundleEntry) preset(mode speech.Mode) Preset {
	p := Preset{
		ID:          e.ID,
		Name:        e.Name,
		Mode:        mode,
		Voice:       e.Voice,
		Instruction: e.Instruction,
	}
	if mode == speech.ModeMulti {
		p.Speakers = speech.CloneSpeakers(e.Speakers)
	}
	return p
}
