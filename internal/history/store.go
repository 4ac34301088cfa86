// Package history keeps the generated clips of the running process, most recent first.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const previewLimit = 50

// Entry is an immutable record of one successful generation.
type Entry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Preview    string    `json:"preview"`
	VoiceLabel string    `json:"voice_label"`
	CreatedAt  time.Time `json:"created_at"`
	ArtifactID string    `json:"artifact_id"`
	Duration   float64   `json:"duration"`
	Size       int       `json:"size"`
}

// Preview shortens text to at most 50 runes followed by "...".
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "..."
}

// Store holds entries and the WAV artifacts they reference.
type Store struct {
	mu         sync.RWMutex
	entries    []Entry
	artifacts  map[string][]byte
	maxEntries int
	clock      func() time.Time
}

type Option func(*Store)

// WithMaxEntries caps the number of kept entries. Zero keeps everything.
func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		artifacts: make(map[string][]byte),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers wav as a new artifact and prepends entry. ID, ArtifactID, Size and a
// missing CreatedAt are filled in by the store.
func (s *Store) Add(entry Entry, wav []byte) Entry {
	entry.ID = uuid.NewString()
	entry.ArtifactID = uuid.NewString()
	entry.Size = len(wav)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[entry.ArtifactID] = wav
	s.entries = append([]Entry{entry}, s.entries...)
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		for _, old := range s.entries[s.maxEntries:] {
			delete(s.artifacts, old.ArtifactID)
		}
		s.entries = s.entries[:s.maxEntries:s.maxEntries]
	}
	return entry
}

// List returns a copy of all entries, most recent first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Artifact returns the WAV bytes registered under artifactID.
func (s *Store) Artifact(artifactID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wav, ok := s.artifacts[artifactID]
	return wav, ok
}

// Release frees an artifact. Entries referencing it stay listed but can no longer be played.
func (s *Store) Release(artifactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, artifactID)
}

// Close drops every entry and artifact.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.artifacts = make(map[string][]byte)
}
