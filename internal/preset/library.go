package preset

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/loqalabs/voxgen/internal/speech"
)

var (
	ErrNotFound  = errors.New("preset not found")
	ErrEmptyName = errors.New("preset name is required")
)

// Library is the ordered preset collection of the running process. It is loaded
// once and written back in full after every change.
type Library struct {
	mu      sync.RWMutex
	store   Store
	presets []Preset
	log     *slog.Logger
}

// NewLibrary loads the collection from store, falling back to Defaults when it is empty or absent.
func NewLibrary(ctx context.Context, store Store, log *slog.Logger) (*Library, error) {
	presets, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	l := &Library{store: store, log: log.With(slog.String("component", "presets"))}
	if len(presets) == 0 {
		l.presets = Defaults()
		l.log.Info("using built-in presets", slog.Int("count", len(l.presets)))
	} else {
		l.presets = presets
	}
	return l, nil
}

func (l *Library) List() []Preset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return clonePresets(l.presets)
}

func (l *Library) Get(id string) (Preset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.presets {
		if p.ID == id {
			p.Speakers = speech.CloneSpeakers(p.Speakers)
			return p, true
		}
	}
	return Preset{}, false
}

// Add snapshots opts under name and appends the result.
func (l *Library) Add(ctx context.Context, name string, opts speech.Options) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, ErrEmptyName
	}
	mode := opts.Mode
	if mode == "" {
		mode = speech.ModeSingle
	}
	p := Preset{
		ID:          uuid.NewString(),
		Name:        name,
		Mode:        mode,
		Voice:       opts.Voice,
		Instruction: opts.Instruction,
	}
	if mode == speech.ModeMulti {
		p.Speakers = speech.CloneSpeakers(opts.Speakers)
	}
	if err := p.Validate(); err != nil {
		return Preset{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	next := append(clonePresets(l.presets), p)
	if err := l.store.Save(ctx, next); err != nil {
		return Preset{}, err
	}
	l.presets = next
	return p, nil
}

func (l *Library) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]Preset, 0, len(l.presets))
	for _, p := range l.presets {
		if p.ID != id {
			next = append(next, p)
		}
	}
	if len(next) == len(l.presets) {
		return ErrNotFound
	}
	if err := l.store.Save(ctx, next); err != nil {
		return err
	}
	l.presets = next
	return nil
}

// Seed appends presets whose ids are not in the collection yet and returns how many were added.
func (l *Library) Seed(ctx context.Context, presets []Preset) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	known := make(map[string]struct{}, len(l.presets))
	for _, p := range l.presets {
		known[p.ID] = struct{}{}
	}
	next := clonePresets(l.presets)
	added := 0
	for _, p := range presets {
		if _, ok := known[p.ID]; ok {
			continue
		}
		known[p.ID] = struct{}{}
		next = append(next, p)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := l.store.Save(ctx, next); err != nil {
		return 0, err
	}
	l.presets = next
	return added, nil
}
