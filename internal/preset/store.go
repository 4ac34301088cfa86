package preset

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loqalabs/voxgen/internal/speech"
)

// Store loads and saves the whole preset collection at once.
type Store interface {
	Load(ctx context.Context) ([]Preset, error)
	Save(ctx context.Context, presets []Preset) error
}

// KV is the blob storage a BlobStore writes through.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// BlobStore keeps the collection as one JSON array under a single key.
type BlobStore struct {
	kv  KV
	key string
}

func NewBlobStore(kv KV, key string) *BlobStore {
	return &BlobStore{kv: kv, key: key}
}

// Load returns nil when the key has never been written.
func (s *BlobStore) Load(ctx context.Context) ([]Preset, error) {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	presets := make([]Preset, 0, len(records))
	for _, r := range records {
		presets = append(presets, Migrate(r))
	}
	return presets, nil
}

func (s *BlobStore) Save(ctx context.Context, presets []Preset) error {
	records := make([]Record, 0, len(presets))
	for _, p := range presets {
		records = append(records, p.Record())
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	return s.kv.Put(ctx, s.key, data)
}

// MemoryStore keeps the collection in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	presets []Preset
	saves   int
}

func NewMemoryStore(initial ...Preset) *MemoryStore {
	return &MemoryStore{presets: clonePresets(initial)}
}

func (m *MemoryStore) Load(context.Context) ([]Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clonePresets(m.presets), nil
}

func (m *MemoryStore) Save(_ context.Context, presets []Preset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presets = clonePresets(presets)
	m.saves++
	return nil
}

// Saves reports how many times the collection was written.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func clonePresets(in []Preset) []Preset {
	if in == nil {
		return nil
	}
	out := make([]Preset, len(in))
	for i, p := range in {
		p.Speakers = speech.CloneSpeakers(p.Speakers)
		out[i] = p
	}
	return out
}
